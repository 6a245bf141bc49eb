package models

// Platform is the runtime surface the client is running on.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// Platforms lists every supported surface.
func Platforms() []Platform {
	return []Platform{PlatformIOS, PlatformAndroid, PlatformWeb}
}

func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

// Provider is a federated identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderApple  Provider = "apple"
)

// Providers lists every supported federated provider.
func Providers() []Provider {
	return []Provider{ProviderGoogle, ProviderApple}
}
