package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rescale-labs/carfw/internal/models"
)

var (
	listCarsBrandFlag     string
	listCarsRawFlag       bool
	listCarsModelFlag     string
	listCarsNameFlag      string
	listCarsVersionFlag   string
	listFirmwareBrandFlag string
	listFirmwareCarIDFlag string
)

func newListCarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-cars",
		Short: "List the cars available for a brand/region",
		Args:  cobra.NoArgs,
		RunE:  runListCars,
	}
	cmd.Flags().StringVar(&listCarsBrandFlag, "brand", "", "vendor brand code (HM, KM, GN)")
	cmd.MarkFlagRequired("brand")
	cmd.Flags().BoolVar(&listCarsRawFlag, "raw", false, "print the vendor's undecoded car-list payload instead of the parsed form")
	cmd.Flags().StringVar(&listCarsModelFlag, "model", "", "only list cars with this technical model name")
	cmd.Flags().StringVar(&listCarsNameFlag, "name", "", "only list cars with this marketing name")
	cmd.Flags().StringVar(&listCarsVersionFlag, "version", "", "only list cars carrying this firmware version")
	return cmd
}

func runListCars(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	log := GetLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	brand := models.ParseBrand(listCarsBrandFlag)
	client := newAPIClient(log, cfg.Retries)

	region, err := resolveRegion(ctx, client, brand, cfg.Region)
	if err != nil {
		return err
	}
	guid, err := client.GetGUID(ctx, region)
	if err != nil {
		return fmt.Errorf("get guid: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if listCarsRawFlag {
		raw, err := client.ListCarsRaw(ctx, region, guid, brand)
		if err != nil {
			return fmt.Errorf("list cars raw: %w", err)
		}
		_, err = os.Stdout.Write(append(raw, '\n'))
		return err
	}

	cars, err := client.ListCars(ctx, region, guid, brand)
	if err != nil {
		return fmt.Errorf("list cars: %w", err)
	}
	cars = filterCars(cars, carSelector(listCarsModelFlag, listCarsNameFlag, listCarsVersionFlag))
	return enc.Encode(cars)
}

// carSelector builds a models.Selector from a --model/--name/--version
// flag triple, the convenience the vendor's own client offers in place
// of the opaque car-list ID.
func carSelector(model, name, version string) models.Selector {
	return models.Selector{Model: model, Name: name, Version: version}
}

// filterCars returns the subset of cars matching sel, or cars unchanged
// if sel is empty.
func filterCars(cars []models.CarInfo, sel models.Selector) []models.CarInfo {
	if sel.Empty() {
		return cars
	}
	out := make([]models.CarInfo, 0, len(cars))
	for _, c := range cars {
		if sel.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

func newListFirmwareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-firmware",
		Short: "Print the firmware manifest for one car",
		Args:  cobra.NoArgs,
		RunE:  runListFirmware,
	}
	cmd.Flags().StringVar(&listFirmwareBrandFlag, "brand", "", "vendor brand code (HM, KM, GN)")
	cmd.MarkFlagRequired("brand")
	cmd.Flags().StringVar(&listFirmwareCarIDFlag, "car-id", "", "car-list ID to fetch the manifest for")
	cmd.MarkFlagRequired("car-id")
	return cmd
}

func runListFirmware(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	log := GetLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	brand := models.ParseBrand(listFirmwareBrandFlag)
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
	var car models.CarInfo
	found := false
	for _, c := range cars {
		if c.ID == listFirmwareCarIDFlag {
			car = c
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no car with id %q in the %s car list for brand %s", listFirmwareCarIDFlag, region, brand)
	}

	manifest, err := client.GetManifest(ctx, region, car)
	if err != nil {
		return fmt.Errorf("get manifest: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}
