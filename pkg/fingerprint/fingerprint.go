// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// The fingerprint package derives a composite hardware identity for the
// current machine. The identity has three segments, PRIMARY-SECONDARY-ENTROPY:
// PRIMARY hashes stable attributes (cpu, architecture, platform, board,
// machine id), SECONDARY hashes semi-stable attributes (mac address, hostname,
// kernel release) and ENTROPY hashes environment attributes. Only PRIMARY is
// authoritative evidence of "same machine"; the other segments tolerate
// network hardware swaps and environment drift.
package fingerprint

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MachineInfo describes the machine for support purposes; it travels with
// validation and activation requests but takes no part in the fingerprint.
type MachineInfo struct {
	Name string `json:"name"`
	OS   string `json:"os"`
}

// Generate returns the composite fingerprint of the current machine.
// It never fails: when the stable attributes cannot be collected, a degraded
// 24 hex character token is returned instead, built from basic OS attributes
// and a capture timestamp.
func Generate() string {

	stable := stableAttributes()
	if len(stable) == 0 {
		log.Warn("no stable hardware attribute available, using a degraded fingerprint")
		return degraded()
	}

	primary := groupHash(stable, 16)
	secondary := groupHash(semiStableAttributes(), 8)
	entropy := groupHash(environmentAttributes(), 4)

	return primary + "-" + secondary + "-" + entropy
}

// Describe returns the machine info sent to the activation authority.
func Describe() *MachineInfo {
	hostname, _ := os.Hostname()
	label := cases.Title(language.Und).String(strings.ReplaceAll(hostname, "-", " "))
	if label == "" {
		label = "Unknown Machine"
	}
	osDesc := runtime.GOOS + "/" + runtime.GOARCH
	if rel := kernelRelease(); rel != "" {
		osDesc += " " + rel
	}
	return &MachineInfo{Name: label, OS: osDesc}
}

// groupHash hashes one attribute group and truncates the digest.
func groupHash(parts []string, length int) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:length]
}

// degraded builds the fallback token. It includes a timestamp and is
// therefore unstable; it only guarantees that the caller receives a
// non-empty identity.
func degraded() string {
	hostname, _ := os.Hostname()
	parts := []string{
		runtime.GOOS,
		runtime.GOARCH,
		hostname,
		fmt.Sprint(runtime.NumCPU()),
		time.Now().Format(time.RFC3339Nano),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:24]
}

// stableAttributes survive OS reinstalls and driver updates.
func stableAttributes() []string {
	var parts []string
	if cpu := cpuModel(); cpu != "" {
		parts = append(parts, cpu)
	}
	parts = append(parts, runtime.GOARCH, runtime.GOOS)
	if board := boardDescriptor(); board != "" {
		parts = append(parts, board)
	}
	if id := machineID(); id != "" {
		parts = append(parts, id)
	}
	// arch and platform alone are not evidence of a specific machine
	if len(parts) <= 2 {
		return nil
	}
	return parts
}

// semiStableAttributes may change on a network hardware swap or a rename
// without the machine being a different one.
func semiStableAttributes() []string {
	var parts []string
	if mac := primaryMAC(); mac != "" {
		parts = append(parts, mac)
	}
	if hostname, err := os.Hostname(); err == nil {
		parts = append(parts, hostname)
	}
	if rel := kernelRelease(); rel != "" {
		parts = append(parts, rel)
	}
	return parts
}

// environmentAttributes reduce collision probability across otherwise
// identical virtual machines; they do not anchor identity.
func environmentAttributes() []string {
	zone, _ := time.Now().Zone()
	return []string{
		zone,
		os.Getenv("LANG"),
		runtime.Version(),
		kernelRelease(),
	}
}

func machineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

func cpuModel() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "model name") {
			if _, model, found := strings.Cut(line, ":"); found {
				return strings.TrimSpace(model)
			}
		}
	}
	return ""
}

func boardDescriptor() string {
	var parts []string
	for _, path := range []string{"/sys/class/dmi/id/board_vendor", "/sys/class/dmi/id/board_name"} {
		if data, err := os.ReadFile(path); err == nil {
			parts = append(parts, strings.TrimSpace(string(data)))
		}
	}
	return strings.Join(parts, " ")
}

func kernelRelease() string {
	data, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// primaryMAC returns the hardware address of the first non-loopback interface.
func primaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}
