package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/carematch/community-recommender/internal/ai"
	"github.com/carematch/community-recommender/internal/extract"
	"github.com/carematch/community-recommender/internal/logger"
	"github.com/carematch/community-recommender/internal/pipeline"
)

// CLI exit codes are a contract with wrapping scripts.
const (
	exitOK             = 0
	exitExtraction     = 1
	exitLLMUnavailable = 2
	exitInput          = 3
)

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Process one consultation from audio or text and print the result JSON",
	Run: func(cmd *cobra.Command, _ []string) {
		consult(cmd)
	},
}

func init() {
	rootCmd.AddCommand(consultCmd)

	consultCmd.Flags().StringP("audio", "a", "", "path to a consultation audio file")
	consultCmd.Flags().StringP("text", "t", "", "consultation transcript text")
	consultCmd.Flags().String("text-file", "", "path to a consultation transcript file")
	consultCmd.Flags().Bool("push-to-crm", false, "push the result to the CRM without asking")
	consultCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation before CRM push")
}

func consult(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	in, err := consultInput(cmd)
	if err != nil {
		logger.Error("reading consultation input", zap.Error(err))
		os.Exit(exitInput)
	}

	sys, err := buildSystem(ctx, config, logger)
	if err != nil {
		logger.Error("building the system", zap.Error(err))
		os.Exit(exitInput)
	}

	result, err := sys.pipeline.Process(ctx, in, pipeline.Options{})
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrUnavailable):
			logger.Error("llm provider unavailable", zap.Error(err))
			os.Exit(exitLLMUnavailable)
		case errors.Is(err, extract.ErrExtraction):
			logger.Error("extraction failed", zap.Error(err))
			os.Exit(exitExtraction)
		default:
			logger.Error("consultation failed", zap.Error(err))
			os.Exit(exitExtraction)
		}
	}

	if sys.crm != nil && shouldPush(cmd) {
		if err := sys.crm.Push(ctx, result); err != nil {
			logger.Warn("crm push failed", zap.Error(err))
		} else {
			result.CRMPushed = true
		}
	}

	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("encoding result", zap.Error(err))
		os.Exit(exitExtraction)
	}
	fmt.Println(string(pretty))

	os.Exit(exitOK)
}

func consultInput(cmd *cobra.Command) (extract.Input, error) {
	audioPath, _ := cmd.Flags().GetString("audio")
	text, _ := cmd.Flags().GetString("text")
	textFile, _ := cmd.Flags().GetString("text-file")

	switch {
	case audioPath != "":
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return extract.Input{}, fmt.Errorf("read audio file: %w", err)
		}
		if len(data) == 0 {
			return extract.Input{}, fmt.Errorf("audio file %q is empty", audioPath)
		}
		return extract.Input{Audio: data, MIME: audioMIME(audioPath)}, nil

	case textFile != "":
		data, err := os.ReadFile(textFile)
		if err != nil {
			return extract.Input{}, fmt.Errorf("read text file: %w", err)
		}
		text = string(data)
		fallthrough

	default:
		if strings.TrimSpace(text) == "" {
			return extract.Input{}, errors.New("one of --audio, --text or --text-file is required")
		}
		return extract.Input{Text: text}, nil
	}
}

func shouldPush(cmd *cobra.Command) bool {
	if push, _ := cmd.Flags().GetBool("push-to-crm"); push {
		return true
	}
	if auto, _ := cmd.Flags().GetBool("auto-aprove"); auto {
		return true
	}

	prompt := promptui.Select{
		Label: "Push this consultation to the CRM?",
		Items: []string{"Yes", "No"},
	}
	_, answer, err := prompt.Run()
	if err != nil {
		return false
	}
	return answer == "Yes"
}

func audioMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}
