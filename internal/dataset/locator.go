package dataset

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ytget/plastic-in-river/internal/model"
)

// DefaultBaseURL is where the published archives live
const DefaultBaseURL = "https://storage.googleapis.com/kili-datasets-public/plastic-in-river/"

const (
	// LegacyVersion is served from the unversioned base path
	LegacyVersion = "1.0.0"
	// CurrentVersion is the default release
	CurrentVersion = "1.1.0"
)

// ArchiveExt is the suffix of every published archive
const ArchiveExt = ".tar.gz"

// ErrInvalidVersion is returned for version strings that are not MAJOR.MINOR.PATCH
var ErrInvalidVersion = errors.New("invalid dataset version")

var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

// Locators maps resource keys ("train_images", ...) to download URLs
type Locators map[string]string

// URL returns the locator for a split and kind
func (l Locators) URL(split model.Split, kind model.ResourceKind) string {
	return l[model.ResourceKey(split, kind)]
}

// Keys returns the resource keys in sorted order
func (l Locators) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveLocators substitutes version into the URL template for every split
// and resource kind. An empty baseURL means DefaultBaseURL.
func ResolveLocators(baseURL, version string) (Locators, error) {
	prefix, err := versionPrefix(baseURL, version)
	if err != nil {
		return nil, err
	}

	locs := make(Locators, len(model.Splits())*len(model.ResourceKinds()))
	for _, split := range model.Splits() {
		for _, kind := range model.ResourceKinds() {
			locs[model.ResourceKey(split, kind)] = prefix + string(split) + "/" + string(kind) + ArchiveExt
		}
	}
	return locs, nil
}

// ResourceURL resolves a single locator
func ResourceURL(baseURL, version string, split model.Split, kind model.ResourceKind) (string, error) {
	prefix, err := versionPrefix(baseURL, version)
	if err != nil {
		return "", err
	}
	return prefix + string(split) + "/" + string(kind) + ArchiveExt, nil
}

// ValidateVersion checks that version has the MAJOR.MINOR.PATCH form
func ValidateVersion(version string) error {
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return nil
}

// versionPrefix returns the base path for version: the bare base for the
// legacy release, base + "v{version}/" for every other release.
func versionPrefix(baseURL, version string) (string, error) {
	if err := ValidateVersion(version); err != nil {
		return "", err
	}

	base := baseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	if version == LegacyVersion {
		return base, nil
	}
	return base + "v" + version + "/", nil
}
