// Package bootloader provides the device-side runtime of the vmboot serial
// bootloader.
//
// # Overview
//
// The runtime turns an unreliable byte stream into verified flash writes:
//   - Bytes are drained from a transport and decoded into frames
//   - Frame payloads are decoded into requests and dispatched
//   - The session state machine gates which requests are valid
//   - Image data is staged into alignment-sized flash writes
//   - Responses are encoded, framed and written back
//
// # Basic Usage
//
// The runtime needs a transport, a flash device and a millisecond clock:
//
//	port, err := transport.OpenSerial(transport.SerialConfig{Port: "/dev/ttyUSB0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	queue := transport.NewQueue(port, 0)
//
//	rt := bootloader.New(queue, myFlash, session.NewSystemClock())
//	if err := rt.Init(); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := rt.RunMainLoop(ctx)
//
// # Session Flow
//
// A programming cycle is four request/response exchanges:
//
//	Handshake              -> HandshakeResponse   (idle or any phase -> handshake_complete)
//	FlashProgram(prepare)  -> Acknowledgment      (handshake_complete -> ready_for_data)
//	DataPacket             -> Acknowledgment      (ready_for_data -> data_received)
//	FlashProgram(verify)   -> FlashResult         (data_received -> programming_complete)
//
// Requests in the wrong phase are answered with a failed Acknowledgment and
// leave the phase unchanged. Flash failures while staging, flushing or
// verifying move the session to the error phase; a new handshake recovers.
//
// # Cycle Control
//
// Embedders with their own loop call RunCycle directly:
//
//	for {
//	    switch rt.RunCycle() {
//	    case bootloader.RunComplete:
//	        jumpToApplication()
//	    case bootloader.RunErrorCritical, bootloader.RunEmergencyShutdown:
//	        return
//	    }
//	    time.Sleep(10 * time.Millisecond)
//	}
//
// # Error Handling
//
// Frame-level errors (bad framing, CRC mismatch, oversized length, frame
// timeout) only reset the frame parser. Request-level errors are reported to
// the host with a result code and never stop the runtime. Session timeouts
// reset the session to idle. Only EmergencyShutdown, a failing response
// encoder or too many transport write failures end the main loop.
package bootloader
