package replay

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario is returned when a scenario file cannot be used.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a scripted sequence of observations with an expected outcome.
type Scenario struct {
	Name string `yaml:"name"`
	// Policy, when set, is sent to PUT /policy before the first step.
	Policy map[string]any `yaml:"policy"`
	Steps  []Step         `yaml:"steps"`
	Expect Expectation    `yaml:"expect"`
}

// Step is one observation, repeated Repeat times, or an explicit re-decide.
type Step struct {
	Observe *Observation  `yaml:"observe"`
	Rebet   bool          `yaml:"rebet"`
	Repeat  int           `yaml:"repeat"`
	Wait    time.Duration `yaml:"wait"`
}

// Observation mirrors the POST /observations body. Nil pointers stay absent.
type Observation struct {
	Slot1Identity    string  `yaml:"slot1" json:"slot1Identity,omitempty"`
	Slot2Identity    string  `yaml:"slot2" json:"slot2Identity,omitempty"`
	DisplaySlot1     string  `yaml:"display1" json:"displaySlot1,omitempty"`
	DisplaySlot2     string  `yaml:"display2" json:"displaySlot2,omitempty"`
	WageringAccepted *bool   `yaml:"accepting" json:"wageringAccepted,omitempty"`
	ModeSignalText   *string `yaml:"mode_signal" json:"modeSignalText,omitempty"`
	BalanceText      *string `yaml:"balance" json:"balanceText,omitempty"`
}

// Expectation is matched against GET /status. Empty fields are not checked.
type Expectation struct {
	StatusMessage string        `yaml:"status_message"`
	Reason        string        `yaml:"reason"`
	Consumed      *bool         `yaml:"consumed"`
	Within        time.Duration `yaml:"within"`
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(raw)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(raw []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}
	for i, st := range sc.Steps {
		hasObserve := st.Observe != nil
		if hasObserve == st.Rebet {
			return nil, fmt.Errorf("%w: step %d must either observe or rebet", ErrInvalidScenario, i+1)
		}
		if st.Repeat < 0 {
			return nil, fmt.Errorf("%w: step %d has a negative repeat", ErrInvalidScenario, i+1)
		}
	}
	if sc.Expect.Within <= 0 {
		sc.Expect.Within = defaultExpectWithin
	}
	return &sc, nil
}
