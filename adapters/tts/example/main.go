package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/MidwestJohn/line-lead-qsr-assistant-sub004/adapters/tts"
	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	// Create logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Check if API key is set
	if os.Getenv("ELEVEN_LABS_API_KEY") == "" {
		logger.Fatal("ELEVEN_LABS_API_KEY environment variable is required")
	}

	// Raw PCM keeps the playback helpers below useful
	config := tts.NewElevenLabsConfigFromEnv()
	config.OutputFormat = "pcm_24000"

	synth, err := tts.NewElevenLabsSynthesizer(config, logger)
	if err != nil {
		logger.Fatal("Failed to create synthesizer", zap.Error(err))
	}

	text := "First, unplug the fryer and let it cool for at least thirty minutes before checking the heating element."

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Synthesizing text", zap.String("text", text))

	audio, err := synth.Synthesize(ctx, text)
	if err != nil {
		logger.Fatal("Failed to synthesize text", zap.Error(err))
	}

	outputFile := "example_output.pcm"
	if err := os.WriteFile(outputFile, audio, 0o644); err != nil {
		logger.Fatal("Failed to write output file", zap.Error(err))
	}

	logger.Info("Synthesis completed",
		zap.Int("totalBytes", len(audio)),
		zap.String("outputFile", outputFile))

	fmt.Printf("✅ Audio successfully saved to %s (%d bytes)\n", outputFile, len(audio))

	// Play the audio file automatically
	if os.Getenv("NO_AUTOPLAY") != "true" {
		logger.Info("Playing audio file automatically...")
		err := playAudioFile(outputFile, logger)
		if err != nil {
			logger.Warn("Failed to play audio automatically", zap.Error(err))
			fmt.Printf("⚠️  Could not auto-play audio. You can manually play it with:\n")
			printPlaybackInstructions(outputFile)
		} else {
			fmt.Printf("🎵 Audio played successfully!\n")
		}
	} else {
		fmt.Printf("🎵 To play the audio file, use:\n")
		printPlaybackInstructions(outputFile)
	}
}

// playAudioFile attempts to play a PCM audio file using available system tools
func playAudioFile(filename string, logger *zap.Logger) error {
	var cmd *exec.Cmd

	// Try different audio players based on the operating system and availability
	players := getAudioPlayers()

	for _, player := range players {
		if isCommandAvailable(player.command) {
			args := append(player.args, filename)
			cmd = exec.Command(player.command, args...)
			logger.Info("Attempting to play audio",
				zap.String("player", player.command),
				zap.Strings("args", args))

			err := cmd.Run()
			if err == nil {
				return nil
			}
			logger.Debug("Player failed",
				zap.String("player", player.command),
				zap.Error(err))
		}
	}

	return fmt.Errorf("no suitable audio player found")
}

// audioPlayer represents an audio player command and its arguments
type audioPlayer struct {
	command string
	args    []string
}

// getAudioPlayers returns a list of audio players to try, with PCM-specific arguments
func getAudioPlayers() []audioPlayer {
	// For pcm_24000 format: 24kHz, signed 16-bit, mono
	return []audioPlayer{
		// SoX play command (most common)
		{"play", []string{"-t", "raw", "-r", "24000", "-e", "signed", "-b", "16", "-c", "1"}},
		// FFplay (part of FFmpeg)
		{"ffplay", []string{"-f", "s16le", "-ar", "24000", "-ac", "1", "-nodisp", "-autoexit"}},
		// ALSA aplay (Linux)
		{"aplay", []string{"-f", "S16_LE", "-r", "24000", "-c", "1"}},
		// macOS afplay (won't work with raw PCM, but trying anyway)
		{"afplay", []string{}},
	}
}

// isCommandAvailable checks if a command is available in the system PATH
func isCommandAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// printPlaybackInstructions prints manual playback instructions for different platforms
func printPlaybackInstructions(filename string) {
	fmt.Printf("  # Using SoX (recommended):\n")
	fmt.Printf("  play -t raw -r 24000 -e signed -b 16 -c 1 %s\n\n", filename)

	fmt.Printf("  # Using FFplay:\n")
	fmt.Printf("  ffplay -f s16le -ar 24000 -ac 1 -nodisp -autoexit %s\n\n", filename)

	if runtime.GOOS == "linux" {
		fmt.Printf("  # Using ALSA (Linux):\n")
		fmt.Printf("  aplay -f S16_LE -r 24000 -c 1 %s\n\n", filename)
	}

	fmt.Printf("  # Convert to WAV for easier playback:\n")
	fmt.Printf("  ffmpeg -f s16le -ar 24000 -ac 1 -i %s %s.wav\n", filename, filename[:len(filename)-4])
}
