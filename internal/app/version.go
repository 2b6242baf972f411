package app

const ServiceName = "course-service"

// Version is overridden at build time with -ldflags "-X course-service/internal/app.Version=...".
var Version = "dev"
