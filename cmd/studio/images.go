package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"spark-backend/internal/core/types"
	"spark-backend/internal/core/utils"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Generate, edit and describe images",
}

var generateImagesCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate one or more images from a prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerateImages,
}

var editImageCmd = &cobra.Command{
	Use:   "edit [prompt]",
	Short: "Edit an image according to a prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEditImage,
}

var analyzeImageCmd = &cobra.Command{
	Use:   "analyze [prompt]",
	Short: "Ask a question about an image",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyzeImage,
}

func init() {
	rootCmd.AddCommand(imagesCmd)
	imagesCmd.AddCommand(generateImagesCmd, editImageCmd, analyzeImageCmd)

	generateImagesCmd.Flags().String("aspect", string(types.ImageSquare), "aspect ratio: 1:1, 16:9, 9:16, 4:3 or 3:4")
	generateImagesCmd.Flags().IntP("count", "n", 1, "number of images to generate")
	generateImagesCmd.Flags().Int("parallel", 4, "maximum concurrent requests")
	generateImagesCmd.Flags().StringP("out", "o", ".", "output directory")

	editImageCmd.Flags().StringP("in", "i", "", "input image")
	editImageCmd.Flags().StringP("out", "o", "edited.jpg", "output file")
	_ = editImageCmd.MarkFlagRequired("in")

	analyzeImageCmd.Flags().StringP("in", "i", "", "input image")
	_ = analyzeImageCmd.MarkFlagRequired("in")
}

func readMedia(path string) (types.Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Media{}, fmt.Errorf("error reading %s: %w", path, err)
	}
	return types.Media{Data: data, MIMEType: http.DetectContentType(data)}, nil
}

func runGenerateImages(c *cobra.Command, args []string) error {
	ctx := c.Context()

	prompt := strings.Join(args, " ")
	aspect, _ := c.Flags().GetString("aspect")
	count, _ := c.Flags().GetInt("count")
	parallel, _ := c.Flags().GetInt("parallel")
	out, _ := c.Flags().GetString("out")

	if count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	if err := types.ImageAspectRatio(aspect).Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	bar := progressbar.NewOptions(count,
		progressbar.OptionSetDescription("generating images"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	generate := func(ctx context.Context, i int) (string, error) {
		image, err := app.Model.GenerateImage(ctx, prompt, types.ImageAspectRatio(aspect))
		if err != nil {
			return "", err
		}
		path := filepath.Join(out, fmt.Sprintf("image-%d.jpg", i+1))
		if err := os.WriteFile(path, image.Data, 0o644); err != nil {
			return "", fmt.Errorf("error writing %s: %w", path, err)
		}
		return path, nil
	}

	indices := make([]int, count)
	for i := range indices {
		indices[i] = i
	}

	var failures []error
	var written []string
	for result := range utils.RunInPool(ctx, indices, parallel, generate) {
		_ = bar.Add(1)
		if result.Error != nil {
			failures = append(failures, result.Error)
			continue
		}
		written = append(written, result.Result)
	}
	_ = bar.Finish()

	for _, path := range written {
		fmt.Println(path)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d images failed: %s", len(failures), count, types.UserMessage(failures[0]))
	}
	return nil
}

func runEditImage(c *cobra.Command, args []string) error {
	in, _ := c.Flags().GetString("in")
	out, _ := c.Flags().GetString("out")

	input, err := readMedia(in)
	if err != nil {
		return err
	}

	image, err := app.Model.EditImage(c.Context(), strings.Join(args, " "), input)
	if err != nil {
		return fmt.Errorf("%s", types.UserMessage(err))
	}

	if err := os.WriteFile(out, image.Data, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", out, err)
	}
	fmt.Println(out)
	return nil
}

func runAnalyzeImage(c *cobra.Command, args []string) error {
	in, _ := c.Flags().GetString("in")

	input, err := readMedia(in)
	if err != nil {
		return err
	}

	text, err := app.Model.Analyze(c.Context(), strings.Join(args, " "), []types.Media{input})
	if err != nil {
		return fmt.Errorf("%s", types.UserMessage(err))
	}
	fmt.Println(text)
	return nil
}
