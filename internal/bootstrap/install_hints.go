package bootstrap

import (
	"os/exec"
	"strings"
)

// installOption is one package manager and the commands that would install a
// missing tool with it. Commands are printed for the user, never executed.
type installOption struct {
	manager  string
	commands [][]string
}

// managersByOS lists package managers in order of preference.
var managersByOS = map[string][]string{
	"windows": {"winget", "choco", "scoop"},
	"darwin":  {"brew"},
}

var linuxManagers = []string{"apt-get", "dnf", "pacman", "zypper", "brew"}

// toolPackages maps a tool ID to its package name per manager. A manager
// without an entry does not ship the tool.
var toolPackages = map[string]map[string]string{
	"exiftool": {
		"winget":  "OliverBetz.ExifTool",
		"choco":   "exiftool",
		"scoop":   "exiftool",
		"brew":    "exiftool",
		"apt-get": "libimage-exiftool-perl",
		"dnf":     "perl-Image-ExifTool",
		"pacman":  "perl-image-exiftool",
		"zypper":  "exiftool",
	},
	"gs": {
		"winget":  "ArtifexSoftware.GhostScript",
		"choco":   "ghostscript",
		"scoop":   "ghostscript",
		"brew":    "ghostscript",
		"apt-get": "ghostscript",
		"dnf":     "ghostscript",
		"pacman":  "ghostscript",
		"zypper":  "ghostscript",
	},
	"pngquant": {
		"choco":   "pngquant",
		"scoop":   "pngquant",
		"brew":    "pngquant",
		"apt-get": "pngquant",
		"dnf":     "pngquant",
		"pacman":  "pngquant",
		"zypper":  "pngquant",
	},
	"jpegoptim": {
		"choco":   "jpegoptim",
		"scoop":   "jpegoptim",
		"brew":    "jpegoptim",
		"apt-get": "jpegoptim",
		"dnf":     "jpegoptim",
		"pacman":  "jpegoptim",
		"zypper":  "jpegoptim",
	},
	"shred": {
		"brew":    "coreutils",
		"apt-get": "coreutils",
		"dnf":     "coreutils",
		"pacman":  "coreutils",
		"zypper":  "coreutils",
	},
}

// installOptions returns the known ways to install toolID on goos.
func installOptions(goos, toolID string) []installOption {
	packages, ok := toolPackages[toolID]
	if !ok {
		return nil
	}
	managers, ok := managersByOS[goos]
	if !ok {
		managers = linuxManagers
	}

	var options []installOption
	for _, manager := range managers {
		pkg, ok := packages[manager]
		if !ok {
			continue
		}
		options = append(options, installOption{
			manager:  manager,
			commands: installCommands(manager, pkg),
		})
	}
	return options
}

func installCommands(manager, pkg string) [][]string {
	switch manager {
	case "winget":
		return [][]string{{"winget", "install", "--id", pkg, "--exact"}}
	case "choco":
		return [][]string{{"choco", "install", pkg, "-y"}}
	case "scoop":
		return [][]string{{"scoop", "install", pkg}}
	case "brew":
		return [][]string{{"brew", "install", pkg}}
	case "apt-get":
		return [][]string{
			{"sudo", "apt-get", "update"},
			{"sudo", "apt-get", "install", "-y", pkg},
		}
	case "dnf":
		return [][]string{{"sudo", "dnf", "install", "-y", pkg}}
	case "pacman":
		return [][]string{{"sudo", "pacman", "-S", "--noconfirm", pkg}}
	case "zypper":
		return [][]string{{"sudo", "zypper", "install", "-y", pkg}}
	default:
		return nil
	}
}

// installHints renders install suggestions for toolID. Managers found on
// PATH are preferred; when none is present every option is listed.
func installHints(goos, toolID string, available func(string) bool) []string {
	options := installOptions(goos, toolID)
	if available != nil {
		var present []installOption
		for _, option := range options {
			if available(option.manager) {
				present = append(present, option)
			}
		}
		if len(present) > 0 {
			options = present
		}
	}

	hints := make([]string, 0, len(options))
	for _, option := range options {
		parts := make([]string, 0, len(option.commands))
		for _, command := range option.commands {
			parts = append(parts, formatCommand(command[0], command[1:]))
		}
		hints = append(hints, strings.Join(parts, " && "))
	}
	return hints
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}
