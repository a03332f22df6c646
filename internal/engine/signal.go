package engine

// Signal maps a CPU exception vector to the POSIX-like signal number GDB
// expects in an 'S'/'?' reply. Unmapped vectors default to 7 (SIGEMT-ish
// "other"). See spec.md §4.E.1.
//
// Vector 302 alongside 3 mapping to signal 5 is preserved verbatim from
// the original DJGPP stub (original_source/gdbstub/i386-stub.c); its origin
// is undocumented upstream, and spec.md §9 asks that it be kept for
// bit-compatibility rather than explained away.
func Signal(vector int) int {
	switch vector {
	case 0:
		return 8 // divide-by-zero
	case 1:
		return 5 // debug / single-step
	case 3, 302:
		return 5 // breakpoint
	case 4:
		return 16 // overflow (into)
	case 5:
		return 16 // bound
	case 6:
		return 4 // invalid opcode
	case 7:
		return 8 // coprocessor not available
	case 8:
		return 7 // double fault
	case 16:
		return 7 // coprocessor error
	default:
		if vector >= 9 && vector <= 14 {
			return 11 // segment/page faults, including GP and page fault
		}
		return 7
	}
}
