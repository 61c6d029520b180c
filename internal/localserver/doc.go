// Package localserver accepts connections on a Unix-domain stream socket, either one it
// creates itself or one handed over by a supervising system server through SOCKET_TAKEOVER.
//
// The Server type is available on Linux only; the takeover environment parsing is portable.
package localserver
