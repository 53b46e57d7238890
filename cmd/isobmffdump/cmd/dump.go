package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/gomp4/isobmff"
	"github.com/spf13/cobra"
)

var dumpFormat string

var dumpCmd = &cobra.Command{
	Use:   "dump <file.mp4>",
	Short: "Print a file's box tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpFormat, "format", "text", "output format: text (default), json")
}

// boxNode is a box in the printable tree structure.
type boxNode struct {
	Type       string    `json:"type"`
	Size       uint64    `json:"size"`
	Version    *uint8    `json:"version,omitempty"`
	Flags      *uint32   `json:"flags,omitempty"`
	DataLength *int      `json:"dataLength,omitempty"`
	Codec      string    `json:"codec,omitempty"`
	Children   []boxNode `json:"children,omitempty"`
}

func runDump(_ *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	slog.Debug("loaded file", "path", path, "bytes", len(data))

	var nodes []boxNode
	pos := 0
	for pos < len(data) {
		box, err := isobmff.Decode(data, pos, len(data), nil)
		if err != nil {
			return fmt.Errorf("decoding box at offset %d: %w", pos, err)
		}
		nodes = append(nodes, buildNode(box))
		pos += int(box.Size)
	}

	switch dumpFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(nodes)
	case "text", "":
		for _, n := range nodes {
			printNode(n, 0)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", dumpFormat)
	}
}

func buildNode(box *isobmff.Box) boxNode {
	n := boxNode{Type: box.Type.String(), Size: box.Size}
	if isobmff.IsFullBox(box.Type) {
		v, f := box.Version, box.Flags
		n.Version = &v
		n.Flags = &f
	}
	if box.Raw != nil {
		l := len(box.Raw)
		n.DataLength = &l
	}
	if box.Visual != nil || box.Audio != nil {
		n.Codec = isobmff.CodecMime(box)
	}
	if box.Stsd != nil {
		for _, e := range box.Stsd.Entries {
			n.Children = append(n.Children, buildNode(e))
		}
		return n
	}
	for _, c := range box.Children {
		n.Children = append(n.Children, buildNode(c))
	}
	if box.Visual != nil {
		for _, c := range box.Visual.Children {
			n.Children = append(n.Children, buildNode(c))
		}
	}
	if box.Audio != nil {
		for _, c := range box.Audio.Children {
			n.Children = append(n.Children, buildNode(c))
		}
	}
	return n
}

func printNode(n boxNode, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	line := indent + n.Type + " size=" + strconv.FormatUint(n.Size, 10)
	if n.Version != nil {
		line += " version=" + strconv.Itoa(int(*n.Version)) + " flags=" + strconv.FormatUint(uint64(*n.Flags), 16)
	}
	if n.DataLength != nil {
		line += " data=" + strconv.Itoa(*n.DataLength)
	}
	if n.Codec != "" {
		line += " codec=" + n.Codec
	}
	fmt.Println(line)
	for _, c := range n.Children {
		printNode(c, depth+1)
	}
}
