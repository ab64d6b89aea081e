package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/invoice-engine/internal/signature"
)

var (
	keygenOutDir   string
	keygenBits     int
	keygenCert     bool
	keygenCN       string
	keygenOrg      string
	keygenTRN      string
	keygenValidFor time.Duration
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key pair",
	Long: `Generate an RSA signing key (PKCS#8) and its public key.

With --self-signed a certificate for the key is issued as well. Self-signed
certificates are meant for development and test deployments.

Examples:
  invoice-engine keygen --out-dir ./keys
  invoice-engine keygen --self-signed --cn "Gulf Trading LLC" --trn 100123456700003`,
	RunE: runKeygen,
}

var certinfoCmd = &cobra.Command{
	Use:   "certinfo [certificate.pem]",
	Short: "Describe a signing certificate",
	Long: `Print subject, validity and fingerprint of a PEM certificate. Without an
argument the configured signing certificate is described.

Examples:
  invoice-engine certinfo keys/certificate.pem
  invoice-engine certinfo -f json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCertinfo,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(certinfoCmd)

	keygenCmd.Flags().StringVarP(&keygenOutDir, "out-dir", "o", ".", "Directory for the generated files")
	keygenCmd.Flags().IntVar(&keygenBits, "bits", signature.DefaultKeyBits, "RSA key size")
	keygenCmd.Flags().BoolVar(&keygenCert, "self-signed", false, "Also issue a self-signed certificate")
	keygenCmd.Flags().StringVar(&keygenCN, "cn", "Invoice Engine Signing", "Certificate common name")
	keygenCmd.Flags().StringVar(&keygenOrg, "org", "", "Certificate organization")
	keygenCmd.Flags().StringVar(&keygenTRN, "trn", "", "Issuer TRN recorded as subject serial number")
	keygenCmd.Flags().DurationVar(&keygenValidFor, "valid-for", 365*24*time.Hour, "Certificate validity")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	pair, err := signature.GenerateKeyPair(keygenBits)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(keygenOutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	files := map[string][]byte{
		"private_key.pem": pair.PrivateKeyPEM,
		"public_key.pem":  pair.PublicKeyPEM,
	}
	if keygenCert {
		certPEM, err := signature.GenerateSelfSignedCertificate(pair.PrivateKeyPEM, signature.CertificateRequest{
			CommonName:   keygenCN,
			Organization: keygenOrg,
			Country:      "AE",
			SerialNumber: keygenTRN,
			ValidFor:     keygenValidFor,
		})
		if err != nil {
			return err
		}
		files["certificate.pem"] = certPEM
	}

	for name, data := range files {
		path := filepath.Join(keygenOutDir, name)
		mode := os.FileMode(0o644)
		if name == "private_key.pem" {
			mode = 0o600
		}
		if err := os.WriteFile(path, data, mode); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Printf("✓ wrote %s\n", path)
	}
	return nil
}

func runCertinfo(cmd *cobra.Command, args []string) error {
	var data []byte
	if len(args) == 1 {
		var err error
		if data, err = os.ReadFile(args[0]); err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if data, err = cfg.Certificate(); err != nil {
			return err
		}
		if len(data) == 0 {
			return fmt.Errorf("no signing certificate configured (SIGNING_CERTIFICATE_PEM)")
		}
	}

	certs, err := signature.ParseCertificatesPEM(data)
	if err != nil {
		return err
	}
	info, warning, verr := signature.ValidateCertificate(certs[0], time.Now())

	if outputFormat == "json" {
		if err := writeJSON(os.Stdout, info); err != nil {
			return err
		}
		return verr
	}

	fmt.Printf("Subject:     %s\n", info.Subject)
	fmt.Printf("Issuer:      %s\n", info.Issuer)
	fmt.Printf("Serial:      %s\n", info.SerialNumber)
	fmt.Printf("Valid from:  %s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Printf("Valid to:    %s (%d days)\n", info.NotAfter.Format(time.RFC3339), info.DaysUntilExpiry)
	fmt.Printf("Fingerprint: %s\n", info.Fingerprint)
	if info.SelfSigned {
		fmt.Println("⚠ self-signed")
	}
	if len(certs) > 1 {
		fmt.Printf("Chain:       %d intermediate(s)\n", len(certs)-1)
	}
	if warning != "" {
		fmt.Printf("⚠ %s\n", warning)
	}
	return verr
}
