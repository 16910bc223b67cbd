package domain

import "strconv"

// ConfigureCommand returns the configure invocation for the build system.
// custom replaces the default executable when set. make has no configure step.
func (b BuildSystem) ConfigureCommand(custom []string, prefix string, args []string) []string {
	var argv []string
	switch b {
	case BuildSystemAutotools:
		argv = []string{"./configure"}
		if len(custom) > 0 {
			argv = custom
		}
		argv = append(argv, "--prefix="+prefix)
	case BuildSystemCMake:
		argv = []string{"cmake"}
		if len(custom) > 0 {
			argv = custom
		}
		argv = append(argv, "-S", ".", "-B", "build",
			"-DCMAKE_INSTALL_PREFIX="+prefix,
			"-DCMAKE_INSTALL_LIBDIR=lib",
			"-DCMAKE_BUILD_TYPE=Release")
	case BuildSystemMeson:
		argv = []string{"meson", "setup"}
		if len(custom) > 0 {
			argv = custom
		}
		argv = append(argv, "build", "--prefix", prefix, "--libdir", "lib", "--buildtype", "release")
	default:
		if len(custom) == 0 {
			return nil
		}
		argv = custom
	}
	return append(argv[:len(argv):len(argv)], args...)
}

// BuildCommand returns the default build and install invocation.
// Only make receives the extra arguments, since it has no configure step to take them.
func (b BuildSystem) BuildCommand(prefix string, jobs int, args []string) []string {
	j := strconv.Itoa(jobs)
	switch b {
	case BuildSystemCMake:
		return []string{"cmake", "--build", "build", "--target", "install", "--parallel", j}
	case BuildSystemMeson:
		return []string{"ninja", "-C", "build", "install", "-j" + j}
	case BuildSystemMake:
		return append([]string{"make", "install", "-j" + j, "PREFIX=" + prefix}, args...)
	default:
		return []string{"make", "install", "-j" + j}
	}
}
