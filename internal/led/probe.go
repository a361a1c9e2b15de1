package led

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"codeberg.org/mutker/lightsync/internal/logger"
	"codeberg.org/mutker/lightsync/internal/shell"
)

const maxProbeDepth = 3

// Capabilities is what the probe found on this machine.
type Capabilities struct {
	ClassDevices []string
	Channels     []string
	Sysfs        bool
	Interfaces   []string
	HardwareInfo map[string]string
	DebugEnabled bool
}

// probe enumerates control surfaces. It never fails; anything it cannot read
// is simply absent from the result.
func probe(ctx context.Context, cfg Config, runner shell.Runner, log logger.Logger) Capabilities {
	caps := Capabilities{HardwareInfo: map[string]string{}}
	interfaces := map[string]struct{}{}

	if entries, err := os.ReadDir(cfg.LEDClassRoot); err == nil {
		for _, e := range entries {
			name := e.Name()
			caps.ClassDevices = append(caps.ClassDevices, name)
			interfaces[filepath.Join(cfg.LEDClassRoot, name)] = struct{}{}
			if _, ok := knownChannels[name]; ok {
				caps.Channels = append(caps.Channels, name)
			}
		}
	} else {
		log.Debug().Err(err).Str("path", cfg.LEDClassRoot).Msg("LED class directory not readable")
	}

	node := sysfsNode{root: cfg.SysfsRoot}
	if node.available() {
		caps.Sysfs = true
		interfaces[cfg.SysfsRoot] = struct{}{}
	}

	for _, root := range cfg.ProbeRoots {
		for _, p := range findControlFiles(root) {
			interfaces[p] = struct{}{}
		}
	}

	for p := range interfaces {
		caps.Interfaces = append(caps.Interfaces, p)
	}
	slices.Sort(caps.Interfaces)
	slices.Sort(caps.ClassDevices)
	slices.Sort(caps.Channels)

	if cfg.DebugEnablePath != "" {
		if err := writeFile(ctx, cfg.DebugEnablePath, "1"); err == nil {
			caps.DebugEnabled = true
		}
	}

	caps.HardwareInfo["led_interfaces"] = strconv.Itoa(len(caps.Interfaces))
	if runner != nil {
		if out, err := runner.Run(ctx, "uname", "-r"); err == nil {
			caps.HardwareInfo["kernel_version"] = truncate(out, 100)
		}
	}

	log.Debug().
		Int("interfaces", len(caps.Interfaces)).
		Strs("channels", caps.Channels).
		Bool("sysfs", caps.Sysfs).
		Bool("debug_enabled", caps.DebugEnabled).
		Msg("LED probe complete")

	return caps
}

// findControlFiles walks root up to maxProbeDepth looking for entries whose
// name mentions rgb or led.
func findControlFiles(root string) []string {
	var found []string
	if root == "" {
		return nil
	}

	base := strings.Count(filepath.Clean(root), string(filepath.Separator))
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() && strings.Count(path, string(filepath.Separator))-base >= maxProbeDepth {
			return fs.SkipDir
		}
		if path == root {
			return nil
		}

		name := strings.ToLower(d.Name())
		if strings.Contains(name, "rgb") || strings.Contains(name, "led") {
			found = append(found, path)
		}
		return nil
	})

	return found
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
