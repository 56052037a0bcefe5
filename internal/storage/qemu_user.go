package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"sync"
)

const qemuConfPath = "/etc/libvirt/qemu.conf"

// fallbackQEMUID is the qemu uid/gid on Fedora and RHEL.
const fallbackQEMUID = "107"

var (
	qemuUID  string
	qemuGID  string
	qemuOnce sync.Once
	qemuErr  error
)

// GetQEMUUserGroup returns the uid and gid volumes must be owned by so the
// QEMU process can open them. It prefers the user configured in qemu.conf,
// then the common qemu account names, then 107. The result is cached.
func GetQEMUUserGroup() (uid, gid string, err error) {
	qemuOnce.Do(func() {
		username, groupname := readQEMUConf()
		qemuUID, qemuGID, qemuErr = resolveQEMUUserGroup(username, groupname, user.Lookup, user.LookupGroup)
	})
	return qemuUID, qemuGID, qemuErr
}

func readQEMUConf() (username, groupname string) {
	f, err := os.Open(qemuConfPath)
	if err != nil {
		return "", ""
	}
	defer func() { _ = f.Close() }()
	return parseQEMUConf(f)
}

func resolveQEMUUserGroup(
	username, groupname string,
	lookupUser func(string) (*user.User, error),
	lookupGroup func(string) (*user.Group, error),
) (uid, gid string, err error) {
	if username != "" {
		if u, err := lookupUser(username); err == nil {
			gid := u.Gid
			if groupname != "" {
				if g, err := lookupGroup(groupname); err == nil {
					gid = g.Gid
				}
			}
			return u.Uid, gid, nil
		}
	}

	for _, name := range []string{"qemu", "libvirt-qemu"} {
		if u, err := lookupUser(name); err == nil {
			return u.Uid, u.Gid, nil
		}
	}

	return fallbackQEMUID, fallbackQEMUID,
		fmt.Errorf("could not determine QEMU user/group, using fallback UID/GID %s", fallbackQEMUID)
}

// parseQEMUConf pulls the user and group settings out of a qemu.conf body.
func parseQEMUConf(r io.Reader) (username, groupname string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}
	return username, groupname
}
