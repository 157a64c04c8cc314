package client

// Version is the library version reported in the default User-Agent.
const Version = "0.2.14"

// DefaultUserAgent is sent when no user_agent setting is given.
const DefaultUserAgent = "asynclient/" + Version
