package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/LoveLedger/LoveLedger/internal/config"
	"github.com/LoveLedger/LoveLedger/internal/wallet"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Wallet utilities",
}

var walletQRCmd = &cobra.Command{
	Use:   "qr <wallet>",
	Short: "Write a QR code PNG of a wallet address",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletQR,
}

var (
	qrOut  string
	qrSize int
)

func init() {
	walletQRCmd.Flags().StringVar(&qrOut, "out", "", "PNG path (default <wallet>.png in the current directory)")
	walletQRCmd.Flags().IntVar(&qrSize, "size", 256, "Image size in pixels")
	walletCmd.AddCommand(walletQRCmd)
	rootCmd.AddCommand(walletCmd)
}

func runWalletQR(cmd *cobra.Command, args []string) error {
	addr, err := wallet.Normalize(args[0])
	if err != nil {
		return err
	}
	path := strings.TrimSpace(qrOut)
	if path == "" {
		path = addr + ".png"
	}
	if err := config.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	content := "ethereum:" + addr
	if err := qrcode.WriteFile(content, qrcode.Medium, qrSize, path); err != nil {
		return fmt.Errorf("write qr code: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
