package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/zkrelay/internal/relay/vkcache"
)

var vkCmd = &cobra.Command{
	Use:   "vk",
	Short: "Print the verification key reference attached to submissions",
	Run:   runVK,
}

func init() {
	rootCmd.AddCommand(vkCmd)
}

func runVK(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	vk, err := vkcache.Load(vkcache.Source{Hash: cfg.VK.Hash, File: cfg.VK.File})
	if err != nil {
		slog.Error("Failed to load verification key", "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(vk, "", "  ")
	if err != nil {
		slog.Error("Failed to encode verification key", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
