package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smart-pulse-M1-GI/frontend/internal/backend"
)

var (
	loginMail     string
	loginPassword string

	regMail       string
	regPassword   string
	regConfirm    string
	regNom        string
	regPrenom     string
	regBirthDate  string
	regSpeciality string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print a bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, _, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		api := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)
		creds, err := api.Login(cmd.Context(), loginMail, loginPassword)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), creds.Token)
		return nil
	},
}

var registerDoctorCmd = &cobra.Command{
	Use:   "register-doctor",
	Short: "Create a doctor account",
	Long: `Create a doctor account on the backend. Passwords must match and be at
least 6 characters; the speciality defaults to general practice.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, _, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		reg := backend.DoctorRegistration{
			Mail:            regMail,
			Password:        regPassword,
			ConfirmPassword: regConfirm,
			Nom:             regNom,
			Prenom:          regPrenom,
			DateNaissance:   regBirthDate,
			Specialite:      regSpeciality,
		}
		if reg.ConfirmPassword == "" {
			reg.ConfirmPassword = reg.Password
		}

		api := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)
		creds, err := api.RegisterDoctor(cmd.Context(), reg)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Doctor %s %s registered\n", reg.Prenom, reg.Nom)
		if creds.Token != "" {
			fmt.Fprintln(cmd.OutOrStdout(), creds.Token)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginMail, "mail", "", "Account e-mail")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	loginCmd.MarkFlagRequired("mail")
	loginCmd.MarkFlagRequired("password")

	registerDoctorCmd.Flags().StringVar(&regMail, "mail", "", "E-mail")
	registerDoctorCmd.Flags().StringVar(&regPassword, "password", "", "Password (6 characters minimum)")
	registerDoctorCmd.Flags().StringVar(&regConfirm, "confirm-password", "", "Password confirmation (defaults to --password)")
	registerDoctorCmd.Flags().StringVar(&regNom, "nom", "", "Last name")
	registerDoctorCmd.Flags().StringVar(&regPrenom, "prenom", "", "First name")
	registerDoctorCmd.Flags().StringVar(&regBirthDate, "date-naissance", "", "Birth date (YYYY-MM-DD)")
	registerDoctorCmd.Flags().StringVar(&regSpeciality, "specialite", "", "Speciality")
	registerDoctorCmd.MarkFlagRequired("mail")
	registerDoctorCmd.MarkFlagRequired("password")
	registerDoctorCmd.MarkFlagRequired("nom")
	registerDoctorCmd.MarkFlagRequired("prenom")
}
