package install

import "fmt"

// Manifest declares where each payload lives inside an extracted release.
type Manifest struct {
	// RootDir is the top-level swiss_r<N> directory of the release.
	RootDir  string
	Revision int
}

func NewManifest(rootDir string, rev int) Manifest {
	if rootDir == "" {
		rootDir = fmt.Sprintf("swiss_r%d", rev)
	}
	return Manifest{RootDir: rootDir, Revision: rev}
}

// SwissDOL is the Swiss executable.
func (m Manifest) SwissDOL() string {
	return fmt.Sprintf("%s/DOL/swiss_r%d.dol", m.RootDir, m.Revision)
}

// Apploader is the archive holding swiss/patches/apploader.img.
func (m Manifest) Apploader() string {
	return m.RootDir + "/Apploader/EXTRACT_TO_ROOT.zip"
}

// OpticalImage is the archive holding boot.iso for GCLoader.
func (m Manifest) OpticalImage() string {
	return m.RootDir + "/GCLoader/EXTRACT_TO_ROOT.zip"
}

// Loader is the gekkoboot archive for PicoLoader.
func (m Manifest) Loader() string {
	return m.RootDir + "/PicoLoader/gekkoboot/EXTRACT_TO_ROOT.zip"
}

// Structural search for the loader archive when Loader() is absent.
var (
	loaderDirHints = []string{"pico", "loader"}
	loaderInnerDir = "gekkoboot"
	loaderZipHint  = "extract_to_root"
)
