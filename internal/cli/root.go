package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"yt-auto-saver/internal/config"
)

// Run dispatches a subcommand. A first argument that looks like a URL or a
// flag runs the archive pipeline.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}
	if err := config.LoadDotEnv(os.Getenv("YTAS_ENV_FILE")); err != nil {
		return err
	}

	switch args[0] {
	case "run":
		return runArchive(ctx, args[1:])
	case "cookies":
		return runCookies(ctx, args[1:])
	case "status":
		return runStatus(args[1:])
	case "failures":
		return runFailures(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	}
	if looksLikeURL(args[0]) || strings.HasPrefix(args[0], "-") {
		return runArchive(ctx, args)
	}
	printRootUsage()
	return fmt.Errorf("unknown command %q", args[0])
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://")
}

func printRootUsage() {
	fmt.Println("yt-auto-saver: incremental playlist and channel archiver built on yt-dlp")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  yt-auto-saver run --dest ~/Music --audio-only <playlist-url>")
	fmt.Println("  yt-auto-saver status --dest ~/Music")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       download new items from one or more sources (default)")
	fmt.Println("  cookies   export a browser's cookies as a Netscape cookie jar")
	fmt.Println("  status    count media files and failure markers in a destination")
	fmt.Println("  failures  browse, inspect and clear failure markers (interactive)")
	fmt.Println("  doctor    run dependency and filesystem preflight checks")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Flag defaults can be set with YTAS_* environment variables or a .env file")
	fmt.Println("  - Use --json on run, status and doctor for machine-readable output")
	fmt.Println("  - Delete a failure marker (or pass --retry-failed) to retry that item")
}
