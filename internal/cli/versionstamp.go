package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rescale-labs/carfw/internal/versionstamp"
)

func newVersionStampCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "version-stamp",
		Short: "Inspect .ver version-stamp files",
	}
	root.AddCommand(newVersionStampShowCmd())
	return root
}

func newVersionStampShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <path>",
		Short: "Parse and print a .ver file's fields",
		Long: `show parses a car's <car.id>.ver version-stamp file and prints its
header and per-file fields, so a completed or in-progress download's
recorded versions can be compared against a fresh manifest without
re-running the whole tool.`,
		Args: cobra.ExactArgs(1),
		RunE: runVersionStampShow,
	}
}

func runVersionStampShow(cmd *cobra.Command, args []string) error {
	body, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	stamp, err := versionstamp.Parse(string(body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	fmt.Printf("update_version: %s\n", stamp.UpdateVersion)
	fmt.Printf("car_version:    %s\n", stamp.CarVersion)
	fmt.Printf("brand:          %s\n", stamp.BrandCode)
	fmt.Printf("car_id:         %s\n", stamp.CarID)
	fmt.Printf("mcode:          %s\n", stamp.MCode)
	fmt.Println("files:")
	for _, f := range stamp.Files {
		name := f.FileName
		if f.FileDir != "" {
			name = f.FileDir + "\\" + name
		}
		fmt.Printf("  %-40s version=%-10s crc32=%d size=%d\n", name, f.FileVersion, f.CRC32Signed, f.FileSize)
	}
	return nil
}
