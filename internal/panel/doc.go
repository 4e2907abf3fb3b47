// Package panel holds the browser preview of the LED matrix.
//
// index.html draws the 53x11 grid on a canvas from frames streamed over
// /ws and shows the /api/v1/status summary beside it. The files are built
// into the binary; a directory on disk can stand in for them while the
// page is being worked on.
package panel
