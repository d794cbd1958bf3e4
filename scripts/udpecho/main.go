// Command udpecho is a minimal UDP echo server for exercising pingmill
// locally: every datagram is sent straight back to its source.
package main

import (
	"flag"
	"log"
	"net"
)

func main() {
	listen := flag.String("listen", "0.0.0.0:9000", "address to listen on")
	flag.Parse()

	addr, err := net.ResolveUDPAddr("udp", *listen)
	if err != nil {
		log.Fatalf("resolve %s: %v", *listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Fatalf("listen %s: %v", *listen, err)
	}
	defer conn.Close()
	log.Printf("echoing on %s", conn.LocalAddr())

	buf := make([]byte, 65536)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		if _, err := conn.WriteToUDP(buf[:n], src); err != nil {
			log.Printf("write to %s: %v", src, err)
		}
	}
}
