package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sl-c19-memorial/memorial-web/internal/geo"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/config"
)

var (
	geoDataset string
	geoLocale  string
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Inspect the province, district and city dataset",
}

var geoProvincesCmd = &cobra.Command{
	Use:   "provinces",
	Short: "List provinces",
	Args:  cobra.NoArgs,
	RunE:  listProvinces,
}

var geoDistrictsCmd = &cobra.Command{
	Use:   "districts <provinceId>",
	Short: "List the districts of a province",
	Args:  cobra.ExactArgs(1),
	RunE:  listDistricts,
}

var geoCitiesCmd = &cobra.Command{
	Use:   "cities <districtId>",
	Short: "List the cities of a district that have a name in the chosen locale",
	Args:  cobra.ExactArgs(1),
	RunE:  listCities,
}

func init() {
	geoCmd.PersistentFlags().StringVar(&geoDataset, "dataset", "", "dataset path or gs:// URI (default: MEMORIAL_GEO_DATASET)")
	geoCmd.PersistentFlags().StringVar(&geoLocale, "locale", "en", "locale used for names")
	geoCmd.AddCommand(geoProvincesCmd, geoDistrictsCmd, geoCitiesCmd)
}

func listProvinces(cmd *cobra.Command, _ []string) error {
	dataset, err := loadDataset(cmd)
	if err != nil {
		return err
	}
	nodes, err := dataset.Provinces(geoLocale)
	if err != nil {
		return err
	}
	return printNodes(cmd.OutOrStdout(), nodes, geoLocale)
}

func listDistricts(cmd *cobra.Command, args []string) error {
	dataset, err := loadDataset(cmd)
	if err != nil {
		return err
	}
	id := geo.ID(strings.TrimSpace(args[0]))
	if _, ok := dataset.Province(id); !ok {
		return fmt.Errorf("unknown province %q", id)
	}
	return printNodes(cmd.OutOrStdout(), dataset.Districts(id), geoLocale)
}

func listCities(cmd *cobra.Command, args []string) error {
	dataset, err := loadDataset(cmd)
	if err != nil {
		return err
	}
	id := geo.ID(strings.TrimSpace(args[0]))
	if _, ok := dataset.District(id); !ok {
		return fmt.Errorf("unknown district %q", id)
	}
	nodes, err := dataset.Cities(id, geoLocale)
	if err != nil {
		return err
	}
	return printNodes(cmd.OutOrStdout(), nodes, geoLocale)
}

func loadDataset(cmd *cobra.Command) (*geo.Dataset, error) {
	uri := strings.TrimSpace(geoDataset)
	if uri == "" {
		env, err := config.EnvironmentValues(config.WithEnvFile(envFile))
		if err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
		uri = strings.TrimSpace(env["MEMORIAL_GEO_DATASET"])
	}
	if uri == "" {
		uri = "data/geo_latest.json"
	}
	return geo.Load(cmd.Context(), uri)
}

func printNodes(w io.Writer, nodes []geo.Node, locale string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range nodes {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", n.ID, n.Name(locale)); err != nil {
			return err
		}
	}
	return tw.Flush()
}
