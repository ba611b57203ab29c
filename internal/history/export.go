package history

import "strings"

const (
	ExportFilename = "history.csv"
	// rows are tab separated despite the csv label
	ExportContentType = "text/csv;charset=utf-8"
)

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// Export renders msgs one per line as "sender<TAB>text".
// Line breaks and tabs inside a field collapse to a single space.
func Export(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, flatten.Replace(string(m.Sender))+"\t"+flatten.Replace(m.Text))
	}
	return strings.Join(lines, "\n")
}

func ExportBytes(msgs []Message) []byte {
	return []byte(Export(msgs))
}
