package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rescale-labs/carfw/internal/api"
	"github.com/rescale-labs/carfw/internal/models"
	"github.com/rescale-labs/carfw/internal/orchestrator"
	"github.com/rescale-labs/carfw/internal/outputdir"
	"github.com/rescale-labs/carfw/internal/pathutil"
	"github.com/rescale-labs/carfw/internal/progress"
)

var (
	brandFlag         string
	downloadModelFlag string
	downloadNameFlag  string
	downloadVerFlag   string
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download [car-id]",
		Short: "Download and reassemble firmware for one car",
		Long: `download looks up a car by its car-list ID, or by --model/--name/
--version as a convenience when the opaque ID isn't known, fetches its
firmware manifest, and runs the downloader until every file in the
manifest has been downloaded and post-processed. Interrupting it with
Ctrl-C leaves on-disk state in place; rerunning the same command
resumes from where it left off.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDownload,
	}
	cmd.Flags().StringVar(&brandFlag, "brand", "", "vendor brand code (HM, KM, GN)")
	cmd.MarkFlagRequired("brand")
	cmd.Flags().StringVar(&downloadModelFlag, "model", "", "select firmware by technical model name (disambiguate with --version)")
	cmd.Flags().StringVar(&downloadNameFlag, "name", "", "select firmware by marketing name")
	cmd.Flags().StringVar(&downloadVerFlag, "version", "", "select firmware by version number")
	return cmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	var carID string
	if len(args) == 1 {
		carID = args[0]
	}
	sel := carSelector(downloadModelFlag, downloadNameFlag, downloadVerFlag)
	if carID == "" && sel.Empty() {
		return fmt.Errorf("specify a car-id, or narrow the firmware with --model/--name/--version")
	}

	ctx := GetContext()
	log := GetLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("output directory is required: pass --output-dir or set it in the settings file")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	absDir, err := pathutil.ResolveAbsolutePath(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}

	brand := models.ParseBrand(brandFlag)
	if brand.Unknown() {
		log.Warn().Str("brand", brandFlag).Msg("unrecognized brand code, passing through as-is")
	}

	client := newAPIClient(log, cfg.Retries)

	region, err := resolveRegion(ctx, client, brand, cfg.Region)
	if err != nil {
		return err
	}

	guid, err := client.GetGUID(ctx, region)
	if err != nil {
		return fmt.Errorf("get guid: %w", err)
	}

	cars, err := client.ListCars(ctx, region, guid, brand)
	if err != nil {
		return fmt.Errorf("list cars: %w", err)
	}
	car, err := resolveCar(cars, carID, sel, region, brand)
	if err != nil {
		return err
	}

	manifest, err := client.GetManifest(ctx, region, car)
	if err != nil {
		return fmt.Errorf("get manifest: %w", err)
	}

	printDownloadSummary(car, region, manifest)

	dir, err := outputdir.Open(absDir)
	if err != nil {
		return fmt.Errorf("open output directory: %w", err)
	}
	defer dir.Close()

	carVersion := ""
	if len(car.Versions) > 0 {
		carVersion = car.Versions[0]
	}

	orc := orchestrator.New(orchestrator.Config{
		Dir:         dir,
		Client:      client,
		Car:         car,
		CarVersion:  carVersion,
		Manifest:    manifest,
		Concurrency: cfg.Concurrency,
		Retries:     cfg.Retries,
		KeepRaw:     cfg.KeepRaw,
		Sink:        progress.NewDefault(),
		Logger:      log,
	})

	log.Info().Str("car_id", car.ID).Str("region", string(region)).Str("dir", absDir).Msg("starting download")
	if err := orc.Run(ctx); err != nil {
		return fmt.Errorf("download %s: %w", car.ID, err)
	}
	log.Info().Str("car_id", car.ID).Msg("download complete")
	return nil
}

// resolveCar finds the single car the user means: an exact car-id match
// when one is given, otherwise the unique match against sel. Multiple
// selector matches are ambiguous and require --version (or the car-id)
// to disambiguate, matching FirmwareSelectorGroup's documented model/
// version relationship.
func resolveCar(cars []models.CarInfo, carID string, sel models.Selector, region models.Region, brand models.Brand) (models.CarInfo, error) {
	if carID != "" {
		for _, c := range cars {
			if c.ID == carID {
				return c, nil
			}
		}
		return models.CarInfo{}, fmt.Errorf("no car with id %q in the %s car list for brand %s", carID, region, brand)
	}

	matches := filterCars(cars, sel)
	switch len(matches) {
	case 0:
		return models.CarInfo{}, fmt.Errorf("no car matches --model/--name/--version in the %s car list for brand %s", region, brand)
	case 1:
		return matches[0], nil
	default:
		return models.CarInfo{}, fmt.Errorf("%d cars match --model/--name/--version in the %s car list for brand %s; narrow with --version or pass the car-id directly", len(matches), region, brand)
	}
}

// printDownloadSummary prints the car/region/manifest identification the
// user is about to download, before any network transfer starts.
func printDownloadSummary(car models.CarInfo, region models.Region, manifest models.FirmwareManifest) {
	version := ""
	if len(car.Versions) > 0 {
		version = car.Versions[0]
	}
	fmt.Fprintf(os.Stdout, "ID: %s\n", car.ID)
	fmt.Fprintf(os.Stdout, "Region: %s\n", region)
	fmt.Fprintf(os.Stdout, "Brand: %s\n", car.Brand)
	fmt.Fprintf(os.Stdout, "Model: %s\n", car.Name)
	fmt.Fprintf(os.Stdout, "Version: %s\n", version)
	fmt.Fprintf(os.Stdout, "Size: %d bytes\n", manifest.TotalSize)
	fmt.Fprintln(os.Stdout, "Files:")
	for _, f := range manifest.Files {
		fmt.Fprintf(os.Stdout, "  %s\n", f.FinalRelPath())
		fmt.Fprintf(os.Stdout, "    CRC32: %08X\n", f.CRC32)
		fmt.Fprintf(os.Stdout, "    Size: %d bytes\n", f.Size)
	}
}

// resolveRegion honors an explicit --region override, otherwise
// autodetects one and fails with a hint if the vendor reports the
// autodetected region as unsupported for this brand.
func resolveRegion(ctx context.Context, client *api.Client, brand models.Brand, override string) (models.Region, error) {
	if override != "" {
		return models.Region(override), nil
	}
	result, err := client.GetRegion(ctx, brand)
	if err != nil {
		return "", fmt.Errorf("autodetect region: %w", err)
	}
	if result.Unsupported {
		return "", fmt.Errorf("autodetected region %q is not supported for brand %s; pass --region to override", result.RawCode, brand)
	}
	return result.Region, nil
}
