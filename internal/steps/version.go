package steps

// BaseVersion is the release version of the step logic. The effective tool
// version used for cache keys is Registry.Version(BaseVersion).
const BaseVersion = "0.1.0"
