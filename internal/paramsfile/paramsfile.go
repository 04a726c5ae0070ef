// Package paramsfile parses the whitespace-delimited configuration files
// described in spec §6: the router's forwarding-table preload, the
// blaster's params file, and the middlebox's params file.
package paramsfile

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/coursenet/dataplane/internal/blast"
	"github.com/coursenet/dataplane/internal/middlebox"
)

// ForwardingRow is one line of a preloaded forwarding_table.txt.
type ForwardingRow struct {
	Prefix  net.IP
	Mask    net.IP
	NextHop net.IP
	IfName  string
}

// LoadForwardingTable reads "prefix mask next_hop ifname" rows, one per
// line. Unreadable or malformed lines are skipped, per spec §6.
func LoadForwardingTable(path string) ([]ForwardingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("paramsfile: open forwarding table: %w", err)
	}
	defer f.Close()

	var rows []ForwardingRow
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 4 {
			continue
		}
		prefix := net.ParseIP(fields[0])
		mask := net.ParseIP(fields[1])
		nextHop := net.ParseIP(fields[2])
		if prefix == nil || mask == nil || nextHop == nil {
			continue
		}
		rows = append(rows, ForwardingRow{Prefix: prefix.To4(), Mask: mask.To4(), NextHop: nextHop.To4(), IfName: fields[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("paramsfile: read forwarding table: %w", err)
	}
	return rows, nil
}

var blasterParamKeys = map[string]bool{"-b": true, "-n": true, "-l": true, "-w": true, "-rtt": true, "-r": true, "-alpha": true}

// LoadBlasterParams parses a single-line, 14-token blaster_params.txt
// (spec §4.7, §6). A missing or malformed file is a fatal configuration
// error (spec §7).
func LoadBlasterParams(path string) (blast.SenderConfig, error) {
	fields, err := readSingleLineFields(path, 14)
	if err != nil {
		return blast.SenderConfig{}, err
	}

	var cfg blast.SenderConfig
	seen := make(map[string]bool)
	for i := 0; i+1 < len(fields); i += 2 {
		key, value := fields[i], fields[i+1]
		if !blasterParamKeys[key] {
			return blast.SenderConfig{}, fmt.Errorf("paramsfile: unknown blaster parameter %q", key)
		}
		seen[key] = true
		switch key {
		case "-b":
			ip := net.ParseIP(value)
			if ip == nil {
				return blast.SenderConfig{}, fmt.Errorf("paramsfile: invalid -b value %q", value)
			}
			cfg.BlasteeIP = ip.To4()
		case "-n":
			cfg.TotalPackets, err = strconv.Atoi(value)
		case "-l":
			cfg.LengthPerBlast, err = strconv.Atoi(value)
		case "-w":
			cfg.WindowSize, err = strconv.Atoi(value)
		case "-rtt":
			var i int
			i, err = strconv.Atoi(value)
			cfg.EstRTTMs = float64(i)
		case "-r":
			cfg.RecvTimeoutMs, err = strconv.Atoi(value)
		case "-alpha":
			cfg.EWMAAlpha, err = strconv.ParseFloat(value, 64)
		}
		if err != nil {
			return blast.SenderConfig{}, fmt.Errorf("paramsfile: invalid value for %s: %w", key, err)
		}
	}
	if len(seen) != len(blasterParamKeys) {
		return blast.SenderConfig{}, fmt.Errorf("paramsfile: missing blaster parameters, got %d of %d", len(seen), len(blasterParamKeys))
	}
	return cfg, nil
}

var middleboxParamKeys = map[string]bool{"-s": true, "-p": true, "-dm": true, "-dstd": true}

// LoadMiddleboxParams parses a single-line, 8-token middlebox_params.txt
// (spec §4.9, §6).
func LoadMiddleboxParams(path string) (middlebox.Params, error) {
	fields, err := readSingleLineFields(path, 8)
	if err != nil {
		return middlebox.Params{}, err
	}

	var cfg middlebox.Params
	seen := make(map[string]bool)
	for i := 0; i+1 < len(fields); i += 2 {
		key, value := fields[i], fields[i+1]
		if !middleboxParamKeys[key] {
			return middlebox.Params{}, fmt.Errorf("paramsfile: unknown middlebox parameter %q", key)
		}
		seen[key] = true
		switch key {
		case "-s":
			var v int64
			v, err = strconv.ParseInt(value, 10, 64)
			cfg.Seed = v
		case "-p":
			cfg.DropPct, err = strconv.Atoi(value)
		case "-dm":
			cfg.DelayMeanMs, err = strconv.ParseFloat(value, 64)
		case "-dstd":
			cfg.DelayStdMs, err = strconv.ParseFloat(value, 64)
		}
		if err != nil {
			return middlebox.Params{}, fmt.Errorf("paramsfile: invalid value for %s: %w", key, err)
		}
	}
	if len(seen) != len(middleboxParamKeys) {
		return middlebox.Params{}, fmt.Errorf("paramsfile: missing middlebox parameters, got %d of %d", len(seen), len(middleboxParamKeys))
	}
	return cfg, nil
}

func readSingleLineFields(path string, wantTokens int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("paramsfile: open %s: %w", path, err)
	}
	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	fields := strings.Fields(line)
	if len(fields) != wantTokens {
		return nil, fmt.Errorf("paramsfile: %s has %d fields, want %d", path, len(fields), wantTokens)
	}
	return fields, nil
}
