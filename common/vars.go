package common

// Version is set at build time via -ldflags "-X github.com/ruteri/heirloom/common.Version=..."
var Version = "dev"

const PackageName = "github.com/ruteri/heirloom"
