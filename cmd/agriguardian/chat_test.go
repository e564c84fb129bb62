package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/agriguardian/agriguardian/internal/config"
)

// chatSession runs the chat subcommand against a scripted stdin and
// returns everything it printed. The credential environment is cleared
// so no test ever reaches the network.
func chatSession(t *testing.T, script ...string) string {
	t.Helper()
	t.Setenv(config.EnvAPIKey, "")
	t.Chdir(t.TempDir())

	stdin := strings.NewReader(strings.Join(script, "\n") + "\n")
	var out bytes.Buffer
	if err := runChat(context.Background(), stdin, &out, ""); err != nil {
		t.Fatalf("runChat failed: %v", err)
	}
	return out.String()
}

func TestRunChat_SimulatedSetupAndExit(t *testing.T) {
	out := chatSession(t,
		"",         // skip API key prompt
		"simulate", // conditions
		"tomatoes", // crops
		"3",        // growth stage
		"none",     // issues
		"exit",
	)

	for _, want := range []string{
		"Welcome to AgriGuardian",
		"OpenRouter API Key Required",
		"FARM CONDITIONS SETUP",
		"CROP INFORMATION",
		"CURRENT FARM CONDITIONS",
		"Temperature:",
		"Thank you for using AgriGuardian. Goodbye!",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestRunChat_CustomConditions(t *testing.T) {
	out := chatSession(t,
		"",
		"custom",
		"25.5", // temperature
		"60",   // humidity
		"45",   // soil moisture
		"8000", // light
		"12",   // rainfall
		"maize",
		"4",
		"none",
		"exit",
	)

	if !strings.Contains(out, "Temperature: 25.5°C") {
		t.Errorf("custom temperature not echoed, got:\n%s", out)
	}
	if !strings.Contains(out, "Rainfall (24h): 12mm") {
		t.Error("custom rainfall not echoed")
	}
}

func TestRunChat_InvalidCustomInputFallsBackToSimulation(t *testing.T) {
	out := chatSession(t,
		"",
		"custom",
		"not a number",
		"wheat",
		"1",
		"none",
		"exit",
	)

	if !strings.Contains(out, "Invalid input detected. Using simulated values instead.") {
		t.Error("invalid input fallback message missing")
	}
	if !strings.Contains(out, "CURRENT FARM CONDITIONS") {
		t.Error("simulated conditions never displayed")
	}
}

func TestRunChat_QuestionWithoutCredentialReportsError(t *testing.T) {
	out := chatSession(t,
		"", // decline to enter a key
		"simulate",
		"beans",
		"2",
		"none",
		"Why are my leaves wilting?",
		"exit",
	)

	if !strings.Contains(out, "Consulting agricultural knowledge") {
		t.Error("progress message missing")
	}
	if !strings.Contains(out, "Error: OpenRouter API key not configured.") {
		t.Errorf("missing-credential advice text absent, got:\n%s", out)
	}
	if !strings.Contains(out, "(API Request Count: 0/50 daily limit)") {
		t.Error("request count line missing or wrong; credential failures must not consume budget")
	}
}

func TestRunChat_UpdateCropsCommand(t *testing.T) {
	out := chatSession(t,
		"",
		"simulate",
		"tomatoes",
		"3",
		"none",
		"update crops",
		"potatoes",
		"5",
		"blight",
		"exit",
	)

	if strings.Count(out, "CROP INFORMATION") != 2 {
		t.Error("update crops did not rerun the crop setup")
	}
}

func TestRunChat_EOFExitsCleanly(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")
	t.Chdir(t.TempDir())

	// Script ends after setup; EOF mid-loop must not error.
	stdin := strings.NewReader("\nsimulate\nrice\n1\nnone\n")
	var out bytes.Buffer
	if err := runChat(context.Background(), stdin, &out, ""); err != nil {
		t.Fatalf("runChat failed at EOF: %v", err)
	}
	if !strings.Contains(out.String(), "Goodbye!") {
		t.Error("farewell missing on EOF")
	}
}
