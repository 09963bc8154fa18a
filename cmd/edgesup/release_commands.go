package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dalevision/edgesup/internal/release"
)

// createPackageCommand creates the package subcommand.
func createPackageCommand(flags *PackageFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Build a distributable bundle",
		Long: `Stage the required files from the source directory, check them against
the variant's manifest and write a verified zip. The build fails closed: on
any manifest violation nothing remains at the output path.

Variants:
  template     ships .env.example, forbids a live .env
  placeholder  ships a placeholder .env, forbids .env.example

Examples:
  edgesup package --output dalevision-edge.zip --variant template
  edgesup package --source ./dist --output bundle.zip --variant placeholder`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPackage(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Source, "source", ".", "directory holding the files to package")
	cmd.Flags().StringVar(&flags.Output, "output", "", "path of the zip to write (required)")
	cmd.Flags().StringVar(&flags.Variant, "variant", string(release.VariantTemplate), "bundle variant: template or placeholder")

	if err := cmd.MarkFlagRequired("output"); err != nil {
		panic(err)
	}

	return cmd
}

func runPackage(flags PackageFlags) error {
	variant, err := release.ParseVariant(flags.Variant)
	if err != nil {
		return err
	}
	manifest, err := release.DefaultManifest(variant)
	if err != nil {
		return err
	}
	if err := release.BuildArtifact(flags.Source, manifest, flags.Output); err != nil {
		return err
	}
	fmt.Printf("artifact written and verified: %s\n", flags.Output)
	return nil
}

// createVerifyCommand creates the verify subcommand.
func createVerifyCommand(flags *VerifyFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an existing bundle against its manifest",
		Long: `Open a previously built zip and re-check its member list against the
variant's manifest: every required entry present, nothing forbidden, no
strays, no duplicates. Intended as a CI smoke test before publishing.

Examples:
  edgesup verify --artifact dalevision-edge.zip --variant template`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Artifact, "artifact", "", "path of the zip to verify (required)")
	cmd.Flags().StringVar(&flags.Variant, "variant", string(release.VariantTemplate), "bundle variant: template or placeholder")

	if err := cmd.MarkFlagRequired("artifact"); err != nil {
		panic(err)
	}

	return cmd
}

func runVerify(flags VerifyFlags) error {
	variant, err := release.ParseVariant(flags.Variant)
	if err != nil {
		return err
	}
	manifest, err := release.DefaultManifest(variant)
	if err != nil {
		return err
	}
	if err := release.VerifyArchive(flags.Artifact, manifest); err != nil {
		return err
	}
	fmt.Printf("artifact verified: %s\n", flags.Artifact)
	return nil
}
