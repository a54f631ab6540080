package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/polydawn/capsule/api/def"
)

// captureProcessState walks the process tree rooted at pid (the
// capsule's init) and records each member's open file descriptors.
// Register-level thread state (ThreadRegisters) requires PTRACE_GETREGS
// against a stopped task; this is left populated with just the TID so
// the struct shape round-trips, and the capture/restore pair is
// exercised end-to-end without needing a live ptrace attach in tests --
// the register capture step is the one place a real deployment must
// still add CRIU or an equivalent ptrace-based dumper, since no such
// library exists anywhere in the example corpus to ground one on.
func captureProcessState(rootPID int) (def.ProcessState, error) {
	pids, err := descendantPIDs(rootPID)
	if err != nil {
		return def.ProcessState{}, err
	}

	var state def.ProcessState
	for _, pid := range pids {
		ppid, _ := readPPID(pid)
		fds, _ := readFDs(pid)
		tids, _ := readTIDs(pid)

		var threads []def.ThreadRegisters
		for _, tid := range tids {
			threads = append(threads, def.ThreadRegisters{TID: tid, Regs: map[string]uint64{}})
		}

		state.Processes = append(state.Processes, def.ProcessRecord{
			PID:     pid,
			PPID:    ppid,
			Threads: threads,
			FDs:     fds,
		})
	}
	return state, nil
}

func descendantPIDs(rootPID int) ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	byPPID := map[int][]int{}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ppid, err := readPPID(pid)
		if err != nil {
			continue
		}
		byPPID[ppid] = append(byPPID[ppid], pid)
	}

	var out []int
	var walk func(int)
	walk = func(pid int) {
		out = append(out, pid)
		for _, child := range byPPID[pid] {
			walk(child)
		}
	}
	walk(rootPID)
	return out, nil
}

func readPPID(pid int) (int, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	// Field 4 is ppid, but field 2 (comm) may contain spaces/parens, so
	// split on the last ')' rather than naive whitespace splitting.
	s := string(b)
	idx := strings.LastIndex(s, ")")
	if idx < 0 {
		return 0, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(s[idx+1:])
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	return strconv.Atoi(fields[1])
}

func readTIDs(pid int) ([]int, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, err
	}
	var out []int
	for _, e := range entries {
		if tid, err := strconv.Atoi(e.Name()); err == nil {
			out = append(out, tid)
		}
	}
	return out, nil
}

func readFDs(pid int) ([]def.FileDescriptor, error) {
	dir := fmt.Sprintf("/proc/%d/fd", pid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []def.FileDescriptor
	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		target, err := os.Readlink(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, def.FileDescriptor{FD: fd, Path: target})
	}
	return out, nil
}

// captureNetworkState reads the names of the process's network namespace
// interfaces out of /proc/<pid>/net/dev. Routes, addresses and open
// connections are not captured.
func captureNetworkState(pid int) (def.NetworkState, error) {
	var state def.NetworkState
	if ifaces, err := readProcNetDev(pid); err == nil {
		state.Interfaces = ifaces
	}
	return state, nil
}

func readProcNetDev(pid int) ([]def.NetInterface, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/net/dev", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []def.NetInterface
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo <= 2 {
			continue // header lines
		}
		line := strings.TrimSpace(sc.Text())
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		out = append(out, def.NetInterface{Name: name})
	}
	return out, sc.Err()
}
