package triage

import "testing"

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		message string
		want    MessageKind
	}{
		{"I sprained my ankle playing football", KindInjury},
		{"my knee hurts when I run", KindInjury},
		{"I twisted something in my back", KindInjury},
		{"how much sleep should I get", KindGeneralHealth},
		{"what vitamins help recovery", KindGeneralHealth},
		{"tell me a joke", KindOther},
		{"what's the weather like", KindOther},
	}

	for _, tt := range tests {
		if got := ClassifyMessage(tt.message); got != tt.want {
			t.Errorf("ClassifyMessage(%q) = %s, want %s", tt.message, got, tt.want)
		}
	}
}
