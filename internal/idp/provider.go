package idp

// NativeProvider is an OAuth provider the identity service proxies itself.
// Login goes straight to the identity service's /authorize endpoint and comes
// back with an authorization code.
type NativeProvider string

// BrokerProvider is an OAuth provider the identity service cannot proxy.
// Login is mediated by a "{provider}-oauth" edge function that hands back a
// single-use exchange code instead of an authorization code.
type BrokerProvider string

const (
	ProviderGoogle NativeProvider = "google"
	ProviderKakao  NativeProvider = "kakao"
)

const (
	ProviderNaver BrokerProvider = "naver"
)

// NativeProviders lists every natively supported provider.
var NativeProviders = []NativeProvider{ProviderGoogle, ProviderKakao}

// BrokerProviders lists every broker-mediated provider.
var BrokerProviders = []BrokerProvider{ProviderNaver}

// GenericProviderLabel is shown for provider ids that are not recognized.
const GenericProviderLabel = "social account"

var providerLabels = map[string]string{
	string(ProviderGoogle): "Google",
	string(ProviderKakao):  "Kakao",
	string(ProviderNaver):  "Naver",
}

// ParseNativeProvider returns the native provider named by id.
func ParseNativeProvider(id string) (NativeProvider, bool) {
	for _, p := range NativeProviders {
		if string(p) == id {
			return p, true
		}
	}
	return "", false
}

// ParseBrokerProvider returns the broker provider named by id.
func ParseBrokerProvider(id string) (BrokerProvider, bool) {
	for _, p := range BrokerProviders {
		if string(p) == id {
			return p, true
		}
	}
	return "", false
}

// Label returns the display name for a provider id, or GenericProviderLabel.
func Label(id string) string {
	if label, ok := providerLabels[id]; ok {
		return label
	}
	return GenericProviderLabel
}

func (p NativeProvider) Label() string { return Label(string(p)) }

func (p BrokerProvider) Label() string { return Label(string(p)) }
