package commands

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pds-match-service/internal/domain"
	"github.com/pds-match-service/internal/service"
)

func newStrategiesCommand() *cobra.Command {
	var (
		spec   domain.PersonSpecification
		gender string
	)

	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "Print the query variants generated for a person, in execution order",
		Long: `Print the query variants the match service would send to the registry for the
given demographics. No registry call is made.

Examples:
  matchctl strategies --family Smith --birthdate 1980-01-02 --postcode "LS1 6AE"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g := strings.TrimSpace(gender); g != "" {
				value := domain.Gender(strings.ToLower(g))
				spec.Gender = &value
			}

			variants := service.NewStrategyGenerator().Generate(spec)

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(variants)
		},
	}

	cmd.Flags().StringVar(&spec.GivenName, "given", "", "given name")
	cmd.Flags().StringVar(&spec.FamilyName, "family", "", "family name")
	cmd.Flags().StringVar(&spec.BirthDate, "birthdate", "", "birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&gender, "gender", "", "gender (male, female, other, unknown)")
	cmd.Flags().StringVar(&spec.PostalCode, "postcode", "", "postal code")
	cmd.Flags().StringVar(&spec.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&spec.Email, "email", "", "email address")

	return cmd
}
