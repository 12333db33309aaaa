package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"cubealign/pkg/colormap"
	"cubealign/pkg/config"
	"cubealign/pkg/cube"
	"cubealign/pkg/pipeline"
	"cubealign/pkg/render"
)

const version = "0.2.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cubealign",
		Short: "cubealign aligns dithered IFU spectral cube exposures",
		Long: `cubealign loads dithered IFU spectral cube exposures, reprojects a
wavelength slice of each onto the reference exposure's WCS, estimates the
residual pixel shift with interchangeable registration methods, and renders
the registered and co-added results as PNG panels.`,
	}

	rootCmd.AddCommand(newAlignCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newAlignCmd() *cobra.Command {
	var (
		configPath string
		sliceIndex int
		methods    []string
		outputDir  string
		noRender   bool
		maxShift   int
	)

	cmd := &cobra.Command{
		Use:   "align [<reference_cube> <cube>...]",
		Short: "Align dithered exposures against the first (reference) cube",
		Long: `Align runs the full pipeline on two or more cube resources (local FITS
paths or http(s) URLs). The first resource is the reference and is never
reprojected or shifted; every other exposure is compared against it.
When no cubes are given on the command line, the inputs list from the
configuration file is used instead.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			inputs := resolveInputs(args, cfg.Inputs)
			if len(inputs) < 2 {
				return fmt.Errorf("align needs at least 2 cubes, from arguments or the config inputs list")
			}

			// Flags override the config file.
			if cmd.Flags().Changed("slice") {
				cfg.Processing.SliceIndex = sliceIndex
			}
			if cmd.Flags().Changed("method") {
				cfg.Processing.Methods = methods
			}
			if cmd.Flags().Changed("output") {
				cfg.Output.Dir = outputDir
			}
			if cmd.Flags().Changed("max-shift") {
				cfg.Processing.MaxShift = maxShift
			}
			if noRender {
				cfg.Output.RenderPanels = false
			}

			log := newLogger(cfg.Output.Verbose)

			renderer := render.New()
			renderer.Cmap = colormap.ByName(cfg.Output.Colormap)
			if cfg.Output.Scale > 0 {
				renderer.Scale = cfg.Output.Scale
			}
			renderer.GridStep = cfg.Output.GridStep

			params := &pipeline.Params{
				Inputs:       inputs,
				SliceIndex:   cfg.Processing.SliceIndex,
				Methods:      cfg.Processing.Methods,
				MaxShift:     cfg.Processing.MaxShift,
				OutputDir:    cfg.Output.Dir,
				RenderPanels: cfg.Output.RenderPanels,
			}

			res, err := pipeline.New(params, log, renderer).Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Aligned %d exposures at wavelength plane %d\n", len(inputs), res.SliceIndex)
			for _, mr := range res.Methods {
				fmt.Printf("\n%s:\n", mr.Name)
				for i, s := range mr.Shifts {
					fmt.Printf("  sequence %d shift: dy=%+.3f dx=%+.3f\n", i+2, s.Dy, s.Dx)
				}
			}
			if cfg.Output.RenderPanels {
				fmt.Printf("\nPanels written to: %s\n", cfg.Output.Dir)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "cubealign.yaml", "Path to YAML configuration file")
	cmd.Flags().IntVar(&sliceIndex, "slice", -1, "Wavelength plane index (-1 = middle of reference cube)")
	cmd.Flags().StringSliceVar(&methods, "method", []string{"crosscorr", "chi2", "subpixel"}, "Registration methods to run")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "panels", "Directory for rendered panels")
	cmd.Flags().BoolVar(&noRender, "no-render", false, "Skip writing PNG panels")
	cmd.Flags().IntVar(&maxShift, "max-shift", 0, "Chi-squared search window in pixels (0 = automatic)")
	return cmd
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <cube>",
		Short: "Print the structure and WCS of a cube resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cube.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := c.WCS()
			fmt.Printf("Resource:   %s\n", c.Resource())
			fmt.Printf("Dimensions: %d x %d spatial, %d wavelength planes\n", c.Width(), c.Height(), c.NWave())
			fmt.Printf("Mid plane:  %d (wavelength %.6g %s)\n",
				c.MidPlane(), w.Wave.Wavelength(c.MidPlane()), w.Wave.Cunit)
			fmt.Printf("Sky axes:   %s / %s\n", w.Sky.Ctype[0], w.Sky.Ctype[1])
			fmt.Printf("Reference:  pixel (%.2f, %.2f) -> (%.6f, %.6f) deg\n",
				w.Sky.Crpix[0], w.Sky.Crpix[1], w.Sky.Crval[0], w.Sky.Crval[1])
			cd := w.Sky.CD()
			fmt.Printf("CD matrix:  [%.3e %.3e; %.3e %.3e] deg/px\n", cd[0], cd[1], cd[2], cd[3])
			return nil
		},
	}
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cubealign version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cubealign %s\n", version)
		},
	}
}

// resolveInputs picks the cube list for a run: command-line arguments
// win outright, and the config inputs list fills in when none are given.
func resolveInputs(args, configured []string) []string {
	if len(args) > 0 {
		return args
	}
	return configured
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
