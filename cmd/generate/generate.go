// Package generate provides the command that generates icons from the terminal
package generate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/iconforge/internal/app"
	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/iconset"
	"github.com/tphakala/iconforge/internal/imagegen"
	"github.com/tphakala/iconforge/internal/logger"
)

// options holds the generate command flags
type options struct {
	style      string
	colors     []string
	userID     string
	single     bool
	size       string
	quality    string
	imageStyle string
}

// Command creates the generate command
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate an icon set or a single image",
		Long: `Generate a set of icons for a prompt and print their URLs. Every attempt is
recorded in the generation history. With --single one image is generated from
the prompt as given, without the icon style enhancements.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app.New(settings, logger.Global().Module("main"))
			defer func() { _ = a.Close() }()

			if err := a.OpenServices(cmd.Context()); err != nil {
				return err
			}
			if opts.single {
				return runSingle(cmd.Context(), cmd.OutOrStdout(), a.Generations, args[0], opts)
			}
			return runIconSet(cmd.Context(), cmd.OutOrStdout(), a.IconSets, args[0], opts)
		},
	}

	setupFlags(cmd, opts)

	return cmd
}

// setupFlags configures flags specific to the generate command
func setupFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVar(&opts.style, "style", string(iconset.StyleSticker), "Icon style preset (Sticker, Pastels, Business, Cartoon, 3D Model, Gradient)")
	cmd.Flags().StringArrayVar(&opts.colors, "color", nil, "Palette color, repeat for up to 4 colors")
	cmd.Flags().StringVar(&opts.userID, "user", "", "User id recorded with each generation")
	cmd.Flags().BoolVar(&opts.single, "single", false, "Generate a single image from the prompt as given")
	cmd.Flags().StringVar(&opts.size, "size", string(imagegen.Size1024x1024), "Image size for --single (1024x1024, 1792x1024, 1024x1792)")
	cmd.Flags().StringVar(&opts.quality, "quality", string(imagegen.QualityStandard), "Image quality for --single (standard, hd)")
	cmd.Flags().StringVar(&opts.imageStyle, "image-style", string(imagegen.StyleVivid), "Image style for --single (vivid, natural)")
}

// IconSetGenerator generates an icon set with progress reporting
type IconSetGenerator interface {
	GenerateWithProgress(ctx context.Context, req iconset.Request, userID string, progress iconset.ProgressFunc) (iconset.Result, error)
}

// SingleGenerator generates and records one image
type SingleGenerator interface {
	GenerateAndSave(ctx context.Context, params imagegen.Params, userID string) (*datastore.ImageGeneration, error)
}

func runIconSet(ctx context.Context, out io.Writer, gen IconSetGenerator, prompt string, opts *options) error {
	req := iconset.Request{Prompt: prompt, Style: opts.style, Colors: opts.colors}

	result, err := gen.GenerateWithProgress(ctx, req, opts.userID, func(done, total int) {
		if done < total {
			fmt.Fprintf(out, "Generating icon %d of %d...\n", done+1, total)
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nPrompt: %s\n\n", result.Prompt)
	for i, icon := range result.Icons {
		fmt.Fprintf(out, "Icon %d: %s\n", i+1, icon.ImageURL)
		fmt.Fprintf(out, "        id %s, %d ms\n", icon.ID, icon.GenerationTimeMs)
	}
	return nil
}

func runSingle(ctx context.Context, out io.Writer, gen SingleGenerator, prompt string, opts *options) error {
	params := imagegen.Params{
		Prompt:  strings.TrimSpace(prompt),
		Size:    imagegen.Size(opts.size),
		Quality: imagegen.Quality(opts.quality),
		Style:   imagegen.Style(opts.imageStyle),
		N:       1,
	}

	record, err := gen.GenerateAndSave(ctx, params, opts.userID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Image: %s\n", record.ImageURL)
	fmt.Fprintf(out, "ID: %s\n", record.ID)
	fmt.Fprintf(out, "Generation time: %d ms\n", record.GenerationTimeMs)
	return nil
}
