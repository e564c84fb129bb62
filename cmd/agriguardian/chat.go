package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/agriguardian/agriguardian/internal/advice"
	"github.com/agriguardian/agriguardian/internal/config"
	"github.com/agriguardian/agriguardian/internal/openrouter"
	"github.com/agriguardian/agriguardian/internal/prompt"
	"github.com/agriguardian/agriguardian/internal/sensors"
)

// growthStages maps the numbered menu choices to stage names. Free-text
// entries pass through unchanged.
var growthStages = map[string]string{
	"1": "Planting/Seeding",
	"2": "Sprouting/Emergence",
	"3": "Vegetative Growth",
	"4": "Flowering",
	"5": "Fruiting/Grain Development",
	"6": "Harvesting",
}

// console holds the interactive session state: IO, the pipeline, and
// the farmer's current conditions and context.
type console struct {
	in       *bufio.Scanner
	out      io.Writer
	pipeline *advice.Pipeline
	client   *openrouter.Client
	provider sensors.Provider

	reading sensors.Reading
	crop    prompt.Context
	history []prompt.Turn
}

// runChat handles the "agriguardian chat" subcommand: the interactive
// console session. It prompts for a credential if none is configured,
// walks through conditions and crop setup, then answers questions in a
// loop until the farmer types exit.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, configPath string) error {
	// Console logs only warnings and errors to keep the chat readable.
	logger := newLogger(stdout, slog.LevelWarn, "text")

	config.LoadDotenv()
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		// chat works without a config file; defaults plus the
		// environment credential are enough.
		cfg = config.Default()
	}

	counter := advice.NewCounter(int64(cfg.OpenRouter.DailyLimit))
	client := openrouter.NewClient(cfg.OpenRouter, counter, logger)

	c := &console{
		in:       bufio.NewScanner(stdin),
		out:      stdout,
		pipeline: advice.NewPipeline(client, counter, advice.ConsoleVariant(), nil, logger),
		client:   client,
		provider: sensors.NewSimulator(),
	}

	fmt.Fprintln(c.out, strings.Repeat("=", 60))
	fmt.Fprintln(c.out, "Welcome to AgriGuardian - Your AI Farming Assistant")
	fmt.Fprintln(c.out, strings.Repeat("=", 60))
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "AgriGuardian helps farmers get AI-powered advice on crops and conditions.")

	if !client.HasCredential() {
		c.promptAPIKey()
	}

	c.reading = c.setupConditions()
	c.crop = c.setupCrop()
	c.displayReading()

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Ask any farming or agriculture question, or type 'exit' to quit.")
	fmt.Fprintln(c.out, "Type 'update conditions' to change farm conditions or 'update crops' to change crop information.")

	return c.loop(ctx)
}

// loop reads questions until EOF or an exit command.
func (c *console) loop(ctx context.Context) error {
	for {
		fmt.Fprint(c.out, "\nFarmer's Question: ")
		line, ok := c.readLine()
		if !ok {
			fmt.Fprintln(c.out, "\nThank you for using AgriGuardian. Goodbye!")
			return nil
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "q":
			fmt.Fprintln(c.out, "Thank you for using AgriGuardian. Goodbye!")
			return nil
		case "update conditions":
			c.reading = c.setupConditions()
			c.displayReading()
			continue
		case "update crops":
			c.crop = c.setupCrop()
			continue
		}

		fmt.Fprintln(c.out, "\nConsulting agricultural knowledge... Please wait...")

		resp := c.pipeline.Ask(ctx, advice.Request{
			Question: line,
			Reading:  c.reading,
			Context:  c.crop,
			History:  c.history,
		})

		fmt.Fprintln(c.out, "\n=== AgriGuardian Advice ===")
		fmt.Fprintln(c.out, resp.Text)
		fmt.Fprintf(c.out, "\n(API Request Count: %d/%d daily limit)\n", resp.Count, c.pipeline.Counter().Limit())

		c.history = append(c.history,
			prompt.Turn{Role: "user", Content: line},
			prompt.Turn{Role: "assistant", Content: resp.Text},
		)
		if limit := c.pipeline.Variant().Prompt.HistoryLimit; len(c.history) > limit {
			c.history = c.history[len(c.history)-limit:]
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// promptAPIKey asks for a credential interactively and offers to save
// it to a .env file so the next session starts without the prompt.
func (c *console) promptAPIKey() {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "===== OpenRouter API Key Required =====")
	fmt.Fprintln(c.out, "To use AgriGuardian, you need an OpenRouter API key.")
	fmt.Fprintln(c.out, "Get your key at: https://openrouter.ai/keys")
	fmt.Fprint(c.out, "Enter your OpenRouter API key: ")

	key, _ := c.readLine()
	if key == "" {
		return
	}
	c.client.SetCredential(key)

	fmt.Fprint(c.out, "Save this API key to .env file for future use? (y/n): ")
	if answer, _ := c.readLine(); strings.ToLower(answer) == "y" {
		if err := config.SaveAPIKeyDotenv(key); err != nil {
			fmt.Fprintf(c.out, "Error saving API key to .env file: %v\n", err)
		} else {
			fmt.Fprintln(c.out, "API key saved to .env file.")
		}
	}
}

// setupConditions asks whether to enter conditions by hand or simulate
// them. Any invalid numeric input falls back to simulation.
func (c *console) setupConditions() sensors.Reading {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "===== FARM CONDITIONS SETUP =====")
	fmt.Fprintln(c.out, "Would you like to enter your own farm conditions or use simulated values?")
	fmt.Fprint(c.out, "Enter 'custom' or 'simulate' (default: simulate): ")

	choice, _ := c.readLine()
	if strings.ToLower(choice) != "custom" {
		return c.provider.Reading("")
	}

	fmt.Fprintln(c.out, "\nPlease enter your farm conditions:")
	values := make([]float64, 0, 5)
	for _, field := range []string{
		"Temperature (°C, 10-50): ",
		"Humidity (%, 0-100): ",
		"Soil Moisture (%, 0-100): ",
		"Light Level (Lux, 0-15000): ",
		"Rainfall last 24h (mm, 0-100): ",
	} {
		fmt.Fprint(c.out, field)
		line, _ := c.readLine()
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			fmt.Fprintln(c.out, "Invalid input detected. Using simulated values instead.")
			return c.provider.Reading("")
		}
		values = append(values, v)
	}

	return sensors.NewCustomReading(values[0], values[1], values[2], values[3], values[4])
}

// setupCrop collects crop names, growth stage, and any reported issues.
func (c *console) setupCrop() prompt.Context {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "===== CROP INFORMATION =====")
	fmt.Fprintln(c.out, "What are your main crops? (e.g., tomatoes, wheat, corn, potatoes)")
	fmt.Fprint(c.out, "Enter your crops (comma separated): ")
	crops, _ := c.readLine()
	if crops == "" {
		crops = "various crops"
	}

	fmt.Fprintln(c.out, "\nWhat growth stage are they in?")
	fmt.Fprintln(c.out, "1) Planting/Seeding")
	fmt.Fprintln(c.out, "2) Sprouting/Emergence")
	fmt.Fprintln(c.out, "3) Vegetative Growth")
	fmt.Fprintln(c.out, "4) Flowering")
	fmt.Fprintln(c.out, "5) Fruiting/Grain Development")
	fmt.Fprintln(c.out, "6) Harvesting")
	fmt.Fprint(c.out, "Enter the number or describe the stage: ")
	stage, _ := c.readLine()
	if name, ok := growthStages[stage]; ok {
		stage = name
	}
	if stage == "" {
		stage = "unknown"
	}

	fmt.Fprintln(c.out, "\nAny specific pest or disease issues?")
	fmt.Fprint(c.out, "Enter any issues (or 'none'): ")
	issues, _ := c.readLine()
	if strings.ToLower(issues) == "none" {
		issues = ""
	}

	return prompt.Context{Crops: crops, Stage: stage, Issues: issues}
}

// displayReading prints the current conditions block.
func (c *console) displayReading() {
	r := c.reading
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "===== CURRENT FARM CONDITIONS =====")
	fmt.Fprintf(c.out, "Temperature: %v°C\n", r.Temperature)
	fmt.Fprintf(c.out, "Humidity: %v%%\n", r.Humidity)
	fmt.Fprintf(c.out, "Soil Moisture: %v%%\n", r.SoilMoisture)
	fmt.Fprintf(c.out, "Light Level: %v Lux\n", r.LightLevel)
	fmt.Fprintf(c.out, "Rainfall (24h): %vmm\n", r.RainfallLast24h)
	fmt.Fprintf(c.out, "Timestamp: %s\n", r.Timestamp)
	fmt.Fprintln(c.out, "==================================")
}

// readLine returns the next trimmed input line. ok is false at EOF.
func (c *console) readLine() (line string, ok bool) {
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}
