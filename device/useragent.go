package device

import "strings"

const unknown = "Unknown"

// Device classes.
const (
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeTV      = "tv"
	TypeDesktop = "desktop"
)

// Info is the parsed form of a user-agent string plus its fingerprint.
type Info struct {
	Fingerprint    string `json:"fingerprint" bson:"fingerprint"`
	Browser        string `json:"browser" bson:"browser"`
	BrowserVersion string `json:"browserVersion,omitempty" bson:"browserVersion,omitempty"`
	OS             string `json:"os" bson:"os"`
	DeviceType     string `json:"deviceType" bson:"deviceType"`
}

type token struct {
	needle string
	name   string
	// version is the prefix preceding the version number, if any.
	version string
}

// Ordered: Edge and Opera embed "Chrome" and "Safari"; Chrome embeds "Safari".
var browsers = []token{
	{"edg/", "Edge", "Edg/"},
	{"edge/", "Edge", "Edge/"},
	{"opr/", "Opera", "OPR/"},
	{"opera", "Opera", "Version/"},
	{"chrome/", "Chrome", "Chrome/"},
	{"crios/", "Chrome", "CriOS/"},
	{"firefox/", "Firefox", "Firefox/"},
	{"fxios/", "Firefox", "FxiOS/"},
	{"safari/", "Safari", "Version/"},
}

// Ordered: iOS agents say "like Mac OS X"; Android agents say "Linux".
var systems = []token{
	{"windows", "Windows", ""},
	{"iphone", "iOS", ""},
	{"ipad", "iOS", ""},
	{"ipod", "iOS", ""},
	{"android", "Android", ""},
	{"mac os x", "macOS", ""},
	{"macintosh", "macOS", ""},
	{"cros", "ChromeOS", ""},
	{"linux", "Linux", ""},
}

// ParseUserAgent extracts browser, OS and device class with ordered substring
// checks. The first match in each table wins. Unrecognised parts are "Unknown".
func ParseUserAgent(ua string) Info {
	lower := strings.ToLower(ua)
	info := Info{Browser: unknown, OS: unknown, DeviceType: TypeDesktop}

	for _, b := range browsers {
		if strings.Contains(lower, b.needle) {
			info.Browser = b.name
			info.BrowserVersion = versionAfter(ua, b.version)
			break
		}
	}
	for _, s := range systems {
		if strings.Contains(lower, s.needle) {
			info.OS = s.name
			break
		}
	}
	info.DeviceType = deviceType(lower)
	return info
}

// Recognized reports whether any part of the agent was understood.
func (i Info) Recognized() bool {
	return i.Browser != unknown || i.OS != unknown
}

func deviceType(lower string) string {
	switch {
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "tablet"),
		strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return TypeTablet
	case strings.Contains(lower, "mobile"), strings.Contains(lower, "iphone"), strings.Contains(lower, "ipod"):
		return TypeMobile
	case strings.Contains(lower, "smart-tv"), strings.Contains(lower, "smarttv"),
		strings.Contains(lower, "appletv"), strings.Contains(lower, "googletv"):
		return TypeTV
	default:
		return TypeDesktop
	}
}

func versionAfter(ua, prefix string) string {
	if prefix == "" {
		return ""
	}
	idx := strings.Index(strings.ToLower(ua), strings.ToLower(prefix))
	if idx < 0 {
		return ""
	}
	rest := ua[idx+len(prefix):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return !(r == '.' || (r >= '0' && r <= '9'))
	})
	if end < 0 {
		end = len(rest)
	}
	return rest[:end]
}
