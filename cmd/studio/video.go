package main

import (
	"fmt"
	"os"
	"strings"

	"spark-backend/internal/core/types"
	"spark-backend/internal/video"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Generate and analyze videos",
}

var generateVideoCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Animate a starting image into a short video",
	Long: `Submit a video job and wait for it to finish. The job is polled every
VIDEO_POLL_INTERVAL until it completes or VIDEO_POLL_TIMEOUT passes.

Example:
  studio video generate --image beach.png --aspect 9:16 "the tide comes in"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerateVideo,
}

var analyzeVideoCmd = &cobra.Command{
	Use:   "analyze [prompt]",
	Short: "Ask a question about a video",
	Long: `Sample frames from a video and ask the model about them. Without a
prompt the video is summarized.`,
	RunE: runAnalyzeVideo,
}

func init() {
	rootCmd.AddCommand(videoCmd)
	videoCmd.AddCommand(generateVideoCmd, analyzeVideoCmd)

	generateVideoCmd.Flags().String("image", "", "starting image")
	generateVideoCmd.Flags().String("aspect", string(types.VideoLandscape), "aspect ratio: 16:9 or 9:16")
	generateVideoCmd.Flags().StringP("out", "o", "video.mp4", "output file")
	_ = generateVideoCmd.MarkFlagRequired("image")

	analyzeVideoCmd.Flags().StringP("in", "i", "", "input video")
	_ = analyzeVideoCmd.MarkFlagRequired("in")
}

func newSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

func runGenerateVideo(c *cobra.Command, args []string) error {
	ctx := c.Context()

	imagePath, _ := c.Flags().GetString("image")
	aspect, _ := c.Flags().GetString("aspect")
	out, _ := c.Flags().GetString("out")

	image, err := readMedia(imagePath)
	if err != nil {
		return err
	}

	cred, err := app.Credentials.Current(ctx)
	if err != nil {
		return fmt.Errorf("%s", types.UserMessage(err))
	}

	spinner := newSpinner(video.PhaseLabel(0))
	data, err := app.Generator.Generate(ctx, cred, types.VideoJobSpec{
		Prompt:      strings.Join(args, " "),
		Image:       image,
		AspectRatio: types.VideoAspectRatio(aspect),
	}, func(p video.Progress) {
		spinner.Describe(p.Phase)
		_ = spinner.Add(1)
	})
	_ = spinner.Finish()
	if err != nil {
		return fmt.Errorf("%s", types.UserMessage(err))
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", out, err)
	}
	fmt.Println(out)
	return nil
}

func runAnalyzeVideo(c *cobra.Command, args []string) error {
	in, _ := c.Flags().GetString("in")

	file, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", in, err)
	}
	defer file.Close()

	spinner := newSpinner(video.ExtractingFramesLabel)
	text, err := app.Analyzer.AnalyzeFile(c.Context(), file, strings.Join(args, " "), func(label string) {
		spinner.Describe(label)
		_ = spinner.Add(1)
	})
	_ = spinner.Finish()
	if err != nil {
		return fmt.Errorf("%s", types.UserMessage(err))
	}

	fmt.Println(text)
	return nil
}
