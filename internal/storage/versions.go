package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// LatestAlias resolves to the maximum committed version of a name.
const LatestAlias = "latest"

// ParseVersion parses a dotted version string into its integer components.
// A single leading "v" or "V" is stripped. Every component must be a
// non-negative integer.
func ParseVersion(s string) ([]int, error) {
	trimmed := s
	if len(trimmed) > 0 && (trimmed[0] == 'v' || trimmed[0] == 'V') {
		trimmed = trimmed[1:]
	}
	if trimmed == "" {
		return nil, fmt.Errorf("invalid version %q", s)
	}
	parts := strings.Split(trimmed, ".")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || p == "" {
			return nil, fmt.Errorf("invalid version %q: component %q", s, p)
		}
		nums[i] = n
	}
	return nums, nil
}

// NormalizeVersion returns the canonical form of a version string: the "v"
// prefix stripped and components re-rendered without leading zeros.
func NormalizeVersion(s string) (string, error) {
	nums, err := ParseVersion(s)
	if err != nil {
		return "", err
	}
	return formatVersion(nums), nil
}

func formatVersion(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// CompareVersions orders two parseable version strings: component-wise
// numeric comparison, with the shorter tuple sorting first on a tied prefix.
func CompareVersions(a, b string) (int, error) {
	av, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	bv, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(av) && i < len(bv); i++ {
		if av[i] != bv[i] {
			if av[i] < bv[i] {
				return -1, nil
			}
			return 1, nil
		}
	}
	switch {
	case len(av) < len(bv):
		return -1, nil
	case len(av) > len(bv):
		return 1, nil
	default:
		return 0, nil
	}
}

// MaxVersion returns the maximum parseable version in the list. Unparseable
// entries (reserved temp markers and the like) are ignored.
func MaxVersion(versions []string) (string, bool) {
	var max []int
	found := false
	for _, v := range versions {
		nums, err := ParseVersion(v)
		if err != nil {
			continue
		}
		if !found || compareParsed(nums, max) > 0 {
			max = nums
			found = true
		}
	}
	if !found {
		return "", false
	}
	return formatVersion(max), true
}

// NextVersion computes the successor of the current maximum: the final
// component bumped by one. With no committed versions the first is "1".
func NextVersion(versions []string) string {
	max, ok := MaxVersion(versions)
	if !ok {
		return "1"
	}
	nums, _ := ParseVersion(max)
	nums[len(nums)-1]++
	return formatVersion(nums)
}

// SortVersions orders version strings ascending, dropping unparseable
// entries.
func SortVersions(versions []string) []string {
	type parsed struct {
		raw  string
		nums []int
	}
	var ps []parsed
	for _, v := range versions {
		nums, err := ParseVersion(v)
		if err != nil {
			continue
		}
		ps = append(ps, parsed{raw: formatVersion(nums), nums: nums})
	}
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && compareParsed(ps[j].nums, ps[j-1].nums) < 0; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.raw
	}
	return out
}

func compareParsed(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
