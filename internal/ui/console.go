// Package ui renders the terminal output: the banner, the one-line status, found keys
// and the device table.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Amr-9/KeyHunter/pkg/device"
	"github.com/Amr-9/KeyHunter/pkg/search"
)

var (
	colorTitle = color.New(color.FgCyan, color.Bold)
	colorSpeed = color.New(color.FgGreen, color.Bold)
	colorCount = color.New(color.FgYellow)
	colorDim   = color.New(color.Faint)
	colorFound = color.New(color.FgGreen, color.Bold)
	colorKey   = color.New(color.FgMagenta, color.Bold)
	colorWarn  = color.New(color.FgRed, color.Bold)
)

// Console writes to a terminal. Several devices may report through the same Console.
type Console struct {
	out io.Writer
}

// NewConsole returns a Console writing to out, typically color.Output.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// PrintBanner shows the program name and version.
func (c *Console) PrintBanner(version string) {
	colorTitle.Fprintf(c.out, "KeyHunter %s\n", version)
	colorDim.Fprintln(c.out, "secp256k1 private key search for P2PKH addresses")
	fmt.Fprintln(c.out)
}

// StatusLine formats a snapshot the way it is shown on the status line:
//
//	CPU 1024/16384MB | 3 targets 12.50 MKey/s (1,000,000 total) [00:01:20]
func StatusLine(st search.Status) string {
	var b strings.Builder

	b.WriteString(st.DeviceName)
	if st.DeviceMemory > 0 {
		used := st.DeviceMemory - min(st.FreeMemory, st.DeviceMemory)
		fmt.Fprintf(&b, " %d/%dMB", used>>20, st.DeviceMemory>>20)
	}

	fmt.Fprintf(&b, " | %s %s %s (%s total) [%s]",
		FormatNumber(uint64(st.Targets)), plural(st.Targets, "target"),
		FormatHashRate(st.Speed), FormatNumber(st.Total), FormatDuration(st.TotalTime))

	if st.Restrides > 0 {
		fmt.Fprintf(&b, " stride %s (%d restrides)", st.Stride.Hex(), st.Restrides)
	}
	return b.String()
}

// PrintStatus overwrites the current line with the snapshot.
func (c *Console) PrintStatus(st search.Status) {
	fmt.Fprintf(c.out, "\r%s", StatusLine(st))
}

// ClearLine clears the current line.
func (c *Console) ClearLine() {
	fmt.Fprint(c.out, "\r\033[2K")
}

// PrintResult shows a found key.
func (c *Console) PrintResult(r search.Result, wif string) {
	c.ClearLine()
	fmt.Fprintln(c.out)
	colorFound.Fprintln(c.out, "    ╔══════════════════════════════════════════════════════════╗")
	colorFound.Fprintln(c.out, "    ║                       KEY FOUND                          ║")
	colorFound.Fprintln(c.out, "    ╚══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.out)

	kind := "uncompressed"
	if r.Compressed {
		kind = "compressed"
	}
	fmt.Fprintf(c.out, "    Address:     %s (%s)\n", colorFound.Sprint(r.Address), kind)
	fmt.Fprintf(c.out, "    Private key: %s\n", colorKey.Sprint(KeyHex(r)))
	if wif != "" {
		fmt.Fprintf(c.out, "    WIF:         %s\n", colorKey.Sprint(wif))
	}
	fmt.Fprintf(c.out, "    Public key:  %s\n\n", PublicKeyHex(r))
	colorWarn.Fprintln(c.out, "    KEEP YOUR PRIVATE KEY SECRET!")
}

// PrintDevices renders the device enumeration table.
func (c *Console) PrintDevices(devices []device.Info) {
	if len(devices) == 0 {
		colorWarn.Fprintln(c.out, "No devices available")
		return
	}
	colorTitle.Fprintf(c.out, "%-4s %-8s %-40s %10s %6s\n", "ID", "TYPE", "NAME", "MEMORY", "UNITS")
	listOnly := false
	for _, d := range devices {
		mark := ""
		if d.ListOnly {
			mark = " *"
			listOnly = true
		}
		fmt.Fprintf(c.out, "%-4d %-8s %-40s %8dMB %6d%s\n",
			d.ID, d.Type, d.Name, d.Memory>>20, d.ComputeUnits, mark)
	}
	if listOnly {
		colorWarn.Fprintln(c.out, "* listed only: this build cannot search on these devices")
	}
}

// KeyHex returns the private key as 64 hex digits.
func KeyHex(r search.Result) string {
	b := r.PrivateKey.Bytes32()
	return fmt.Sprintf("%x", b[:])
}

// PublicKeyHex returns the public key in the serialisation that produced the address.
func PublicKeyHex(r search.Result) string {
	if r.Compressed {
		return fmt.Sprintf("%x", r.PublicKey.SerializeCompressed())
	}
	return fmt.Sprintf("%x", r.PublicKey.SerializeUncompressed())
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// FormatHashRate formats a speed given in millions of keys per second.
func FormatHashRate(mkeys float64) string {
	return fmt.Sprintf("%.2f MKey/s", mkeys)
}

// FormatNumber adds commas to large numbers
func FormatNumber(n uint64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	s := fmt.Sprintf("%d", n)
	result := make([]byte, 0, len(s)+(len(s)-1)/3)
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

// FormatDuration formats d as HH:MM:SS, growing a day count when needed.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	days := secs / 86400
	h := (secs / 3600) % 24
	m := (secs / 60) % 60
	s := secs % 60
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
