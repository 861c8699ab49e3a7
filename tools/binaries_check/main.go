package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hibikilabs/hibiki/pkg/radio"
)

func main() {
	fmt.Println("=== Broadcast Binary Dependencies Verification Tool ===")
	fmt.Println()

	// Load configuration to get binary paths
	configManager, err := radio.NewConfigManager()
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		fmt.Println("   Using default binary paths")
		checkDefaultBinaries()
		os.Exit(1)
	}

	pipelineConfig := configManager.GetPipelineConfig()

	fmt.Printf("📋 Configuration loaded successfully\n")
	fmt.Printf("   FFmpeg binary path: %s\n", pipelineConfig.FFmpegPath)
	fmt.Printf("   yt-dlp binary path: %s\n", pipelineConfig.YtDlpPath)
	fmt.Printf("   Bitrate: %d kbps\n", pipelineConfig.Bitrate)
	fmt.Printf("   Sample rate: %d Hz\n", pipelineConfig.SampleRate)
	fmt.Printf("   Channels: %d\n", pipelineConfig.Channels)
	fmt.Println()

	var hasErrors bool

	// Check FFmpeg binary availability
	fmt.Println("🔍 Checking FFmpeg binary...")
	if err := checkFFmpegBinary(pipelineConfig.FFmpegPath); err != nil {
		fmt.Printf("❌ FFmpeg validation failed: %v\n", err)
		hasErrors = true
	} else {
		fmt.Println("✅ FFmpeg binary verification successful!")
	}
	fmt.Println()

	// Check yt-dlp binary availability
	fmt.Println("🔍 Checking yt-dlp binary...")
	if err := checkYtDlpBinary(pipelineConfig.YtDlpPath); err != nil {
		fmt.Printf("❌ yt-dlp validation failed: %v\n", err)
		hasErrors = true
	} else {
		fmt.Println("✅ yt-dlp binary verification successful!")
	}
	fmt.Println()

	if hasErrors {
		printTroubleshootingGuide()
		os.Exit(1)
	}

	fmt.Println("🎉 All broadcast binary dependencies verified successfully!")
	fmt.Println("   The encoder pipeline should be able to process streams.")
}

func checkDefaultBinaries() {
	fmt.Println("🔍 Checking default binary paths...")

	var hasErrors bool

	if err := checkFFmpegBinary("ffmpeg"); err != nil {
		fmt.Printf("❌ FFmpeg validation failed: %v\n", err)
		hasErrors = true
	}

	if err := checkYtDlpBinary("yt-dlp"); err != nil {
		fmt.Printf("❌ yt-dlp validation failed: %v\n", err)
		hasErrors = true
	}

	if hasErrors {
		printTroubleshootingGuide()
	}
}

func checkFFmpegBinary(binaryPath string) error {
	if err := radio.ValidateFFmpegBinary(binaryPath); err != nil {
		return err
	}

	fmt.Printf("   ✅ FFmpeg binary found and functional\n")
	fmt.Printf("   📍 Path: %s\n", binaryPath)

	if !filepath.IsAbs(binaryPath) {
		if absPath, err := filepath.Abs(binaryPath); err == nil {
			fmt.Printf("   📍 Resolved to: %s\n", absPath)
		}
	}

	return nil
}

func checkYtDlpBinary(binaryPath string) error {
	if err := radio.ValidateYtDlpBinary(binaryPath); err != nil {
		return err
	}

	fmt.Printf("   ✅ yt-dlp binary found and functional\n")
	fmt.Printf("   📍 Path: %s\n", binaryPath)

	if !filepath.IsAbs(binaryPath) {
		if absPath, err := filepath.Abs(binaryPath); err == nil {
			fmt.Printf("   📍 Resolved to: %s\n", absPath)
		}
	}

	return nil
}

func printTroubleshootingGuide() {
	fmt.Println("🔧 Troubleshooting Guide:")
	fmt.Println()
	fmt.Println("📦 Install Missing Dependencies:")
	fmt.Println()
	fmt.Println("   FFmpeg:")
	fmt.Println("   Ubuntu/Debian: sudo apt update && sudo apt install ffmpeg")
	fmt.Println("   CentOS/RHEL:   sudo yum install ffmpeg")
	fmt.Println("   macOS:         brew install ffmpeg")
	fmt.Println("   Windows:       Download from https://ffmpeg.org/download.html")
	fmt.Println()
	fmt.Println("   yt-dlp:")
	fmt.Println("   pip install yt-dlp")
	fmt.Println("   Or: sudo apt install yt-dlp  (Ubuntu 22.04+)")
	fmt.Println("   Or: brew install yt-dlp      (macOS)")
	fmt.Println("   Or: Download from https://github.com/yt-dlp/yt-dlp/releases")
	fmt.Println()
	fmt.Println("   Without yt-dlp the station still runs, but YouTube playback")
	fmt.Println("   is limited to the in-process client and SoundCloud loses its")
	fmt.Println("   resolution fallback.")
}
