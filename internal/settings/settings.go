// Package settings holds the per-session parameters the user picks in the
// control panel: model, temperature and API credential.
package settings

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

type Model string

const (
	ModelChatGPT Model = "chatgpt"
	ModelGPT4    Model = "gpt4"
)

const (
	BackendGPT35 = "gpt-3.5-turbo"
	BackendGPT4  = "gpt-4"
)

const (
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	TemperatureStep    = 0.1
	DefaultTemperature = 1.0
)

type ModelOption struct {
	Value Model  `json:"value"`
	Label string `json:"label"`
}

var modelOptions = []ModelOption{
	{Value: ModelChatGPT, Label: "ChatGPT"},
	{Value: ModelGPT4, Label: "GPT-4"},
}

// Models lists the selectable models in display order.
func Models() []ModelOption {
	out := make([]ModelOption, len(modelOptions))
	copy(out, modelOptions)
	return out
}

func ParseModel(s string) (Model, error) {
	m := Model(strings.ToLower(strings.TrimSpace(s)))
	for _, o := range modelOptions {
		if o.Value == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown model %q", s)
}

// BackendName translates the UI model to the gateway's model identifier.
// Anything other than chatgpt goes to the 4-series model.
func (m Model) BackendName() string {
	if m == ModelChatGPT {
		return BackendGPT35
	}
	return BackendGPT4
}

// NormalizeTemperature validates t and rounds it to the slider step.
func NormalizeTemperature(t float64) (float64, error) {
	if math.IsNaN(t) || t < MinTemperature || t > MaxTemperature {
		return 0, fmt.Errorf("temperature %v out of range [%.1f, %.1f]", t, MinTemperature, MaxTemperature)
	}
	return math.Round(t*10) / 10, nil
}

// Values is a point-in-time copy of the panel.
type Values struct {
	Model       Model
	Temperature float64
	Credential  string
}

func Defaults() Values {
	return Values{Model: ModelChatGPT, Temperature: DefaultTemperature}
}

// Panel is safe for concurrent use. Readers get the values current at the
// moment they ask; nothing is snapshotted per message.
type Panel struct {
	mu sync.RWMutex
	v  Values
}

func NewPanel(initial Values) *Panel {
	if _, err := ParseModel(string(initial.Model)); err != nil {
		initial.Model = ModelChatGPT
	}
	if t, err := NormalizeTemperature(initial.Temperature); err == nil {
		initial.Temperature = t
	} else {
		initial.Temperature = DefaultTemperature
	}
	return &Panel{v: initial}
}

func (p *Panel) Values() Values {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v
}

func (p *Panel) SetModel(m Model) error {
	m, err := ParseModel(string(m))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.v.Model = m
	p.mu.Unlock()
	return nil
}

func (p *Panel) SetTemperature(t float64) error {
	t, err := NormalizeTemperature(t)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.v.Temperature = t
	p.mu.Unlock()
	return nil
}

func (p *Panel) SetCredential(c string) {
	p.mu.Lock()
	p.v.Credential = c
	p.mu.Unlock()
}
