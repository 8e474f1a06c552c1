package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/droidrepo/internal/apk"
)

// ErrMissingArgument is returned when a command is missing its operand.
var ErrMissingArgument = errors.New("missing argument")

// inspectCommand prints what the inspector extracts from a local APK.
func inspectCommand(c *cli.Context, deps Dependencies) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("%w: <file.apk>", ErrMissingArgument)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	md, err := apk.Inspect(data)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	switch c.String("output") {
	case "json":
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(md)
	case "text":
		return printMetadata(deps.Stdout, md)
	default:
		return fmt.Errorf("unknown output format: %s", c.String("output"))
	}
}

func printMetadata(w io.Writer, md *apk.Metadata) error {
	var b strings.Builder
	fmt.Fprintf(&b, "package:      %s\n", md.PackageName)
	fmt.Fprintf(&b, "version:      %s (%d)\n", md.VersionName, md.VersionCode)
	fmt.Fprintf(&b, "sdk:          min %d, target %d\n", md.MinSDK, md.TargetSDK)
	fmt.Fprintf(&b, "signer:       %s\n", md.Signer)
	for _, s := range md.Signers[min(1, len(md.Signers)):] {
		fmt.Fprintf(&b, "              %s\n", s)
	}
	fmt.Fprintf(&b, "schemes:      %s\n", strings.Join(md.Schemes, ", "))
	if len(md.NativeCode) > 0 {
		fmt.Fprintf(&b, "native code:  %s\n", strings.Join(md.NativeCode, ", "))
	}
	fmt.Fprintf(&b, "sha256:       %s\n", md.SHA256)
	fmt.Fprintf(&b, "size:         %d\n", md.Size)
	for _, p := range md.Permissions {
		if p.MaxSDKVersion > 0 {
			fmt.Fprintf(&b, "permission:   %s (max sdk %d)\n", p.Name, p.MaxSDKVersion)
		} else {
			fmt.Fprintf(&b, "permission:   %s\n", p.Name)
		}
	}
	for _, f := range md.Features {
		fmt.Fprintf(&b, "feature:      %s\n", f)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
