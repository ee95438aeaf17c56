package sso4337

// Version is the SDK version.
const Version = "0.1.0"
