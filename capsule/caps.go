package capsule

import "github.com/polydawn/capsule/api/def"

/*
	capsForPolicy maps a capsule's declared Policy to the Linux
	capabilities its root process is allowed to retain.  Not every
	runtime can enforce every entry here (a chroot-only fallback simply
	can't), but every runtime MUST honor PolicyRoutine's near-total drop.
*/
func capsForPolicy(p def.Policy) []string {
	switch p {
	case def.PolicyRoutine:
		return []string{"CAP_AUDIT_WRITE", "CAP_KILL", "CAP_NET_BIND_SERVICE"}
	case def.PolicyUidZero:
		return []string{"CAP_AUDIT_WRITE", "CAP_KILL", "CAP_NET_BIND_SERVICE"}
	case def.PolicyGovernor:
		return []string{
			"CAP_AUDIT_WRITE", "CAP_CHOWN", "CAP_DAC_OVERRIDE", "CAP_FSETID",
			"CAP_FOWNER", "CAP_KILL", "CAP_NET_BIND_SERVICE", "CAP_NET_RAW",
			"CAP_SETGID", "CAP_SETUID", "CAP_SETFCAP", "CAP_SETPCAP", "CAP_SYS_CHROOT",
		}
	case def.PolicySysad:
		return []string{"CAP_SYS_ADMIN", "CAP_SYS_MODULE", "CAP_SYS_BOOT", "CAP_ALL"}
	default:
		return capsForPolicy(def.PolicyRoutine)
	}
}

// uidForPolicy is the uid/gid a capsule's process runs as inside the
// capsule: 1000:1000 for Routine, 0:0 for every other policy.
func uidForPolicy(p def.Policy) (uid, gid int) {
	if p == def.PolicyRoutine {
		return 1000, 1000
	}
	return 0, 0
}
