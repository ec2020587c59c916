// ABOUTME: Product identification constants
// ABOUTME: Overridden at build time with -ldflags "-X"
package version

// Version is the release version; "dev" for local builds
var Version = "dev"

// Product is the product name shown in the UI and mDNS records
const Product = "syncwatch"

// Manufacturer is reported alongside Product
const Manufacturer = "Syncwatch"

// UserAgent identifies outbound HTTP requests
func UserAgent() string {
	return Product + "/" + Version
}
