package cmd

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cachemodel/addressing"
)

var decodeFlags = struct {
	lineSize     uint64
	numSets      uint64
	addressWidth int
}{}

var decodeCmd = &cobra.Command{
	Use:   "decode <address>",
	Short: "Split an address into its tag, index, and offset fields.",
	Long: `Decode splits a hexadecimal address into the tag, index, and ` +
		`offset fields a cache with the given geometry would use. For ` +
		`example, with 64-byte lines and 16 sets, 0x00401A3C decodes to ` +
		`offset 0x3C, index 0x8, tag 0x1006.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		decodeAddress(args[0])
	},
}

func init() {
	flags := decodeCmd.Flags()

	flags.Uint64Var(&decodeFlags.lineSize, "line-size", 64,
		"line size in bytes (power of two)")
	flags.Uint64Var(&decodeFlags.numSets, "sets", 16,
		"number of sets (power of two)")
	flags.IntVar(&decodeFlags.addressWidth, "address-width", 32,
		"address width in bits")

	rootCmd.AddCommand(decodeCmd)
}

func decodeAddress(arg string) {
	raw := strings.TrimPrefix(strings.ToLower(arg), "0x")
	addr, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		log.Fatalf("Error: bad address %q", arg)
	}

	layout, err := addressing.MakeLayout(
		decodeFlags.lineSize, decodeFlags.numSets, decodeFlags.addressWidth)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fields, err := layout.Decode(addr)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("Address: 0x%0*X\n", layout.AddressWidth()/4, addr)
	fmt.Printf("Tag:     0x%X (%d bits)\n", fields.Tag, layout.TagBits())
	fmt.Printf("Index:   0x%X (%d bits)\n", fields.Index, layout.IndexBits())
	fmt.Printf("Offset:  0x%X (%d bits)\n", fields.Offset, layout.OffsetBits())
}
